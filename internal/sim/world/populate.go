package world

import (
	"errors"
	"fmt"

	"gridswarm/internal/sim/rng"
)

var ErrPopulateExhausted = errors.New("populate: attempts exhausted")

// Populate places count entities at uniformly random free cells with random
// facings. Occupied draws are retried; maxAttempts bounds the total number of
// draws (<= 0 means 10 per entity). It returns how many were placed.
func Populate(w *World, count int, src rng.Source, maxAttempts int) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("populate: negative count %d", count)
	}
	if free := w.Dims().Cells() - w.Len(); count > free {
		return 0, fmt.Errorf("populate: %d entities do not fit in %d free cells", count, free)
	}
	if maxAttempts <= 0 {
		maxAttempts = 10 * count
	}

	placed := 0
	for attempts := 0; placed < count; attempts++ {
		if attempts >= maxAttempts {
			return placed, fmt.Errorf("%w: placed %d of %d after %d draws", ErrPopulateExhausted, placed, count, attempts)
		}
		x := scale(src.GenerateNext(), w.Width())
		y := scale(src.GenerateNext(), w.Height())
		e := NewEntity(w.LocationAt(x, y), src)
		if _, err := w.PlaceEntity(e); err != nil {
			if IsOccupied(err) {
				continue
			}
			return placed, err
		}
		placed++
	}
	return placed, nil
}

func scale(r float64, n int) int {
	v := int(r * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}
