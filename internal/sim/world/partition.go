package world

// span is a half-open range [lo, hi) of the active list handled by one worker.
type span struct {
	lo, hi int
}

// partition splits n items into at most parts contiguous spans whose sizes
// differ by at most one. Empty spans are omitted.
func partition(n, parts int) []span {
	if parts <= 0 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	out := make([]span, 0, parts)
	for i := 0; i < parts; i++ {
		lo := i * n / parts
		hi := (i + 1) * n / parts
		if lo < hi {
			out = append(out, span{lo: lo, hi: hi})
		}
	}
	return out
}
