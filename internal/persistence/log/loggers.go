package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"gridswarm/internal/sim/world"
)

// Every server start is a separate run with its own directory:
//
//	<worldDir>/runs/<run>/ticks-YYYY-MM-DD-HH.jsonl.zst
//	<worldDir>/runs/<run>/faults-YYYY-MM-DD-HH.jsonl.zst
//
// Run ids are UUIDv7, so sorting them by name sorts runs by start time.
const runsDir = "runs"

// NewRunID returns a fresh, time-ordered run id.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RunDir is where the logs of one run live.
func RunDir(worldDir, run string) string {
	return filepath.Join(worldDir, runsDir, run)
}

// ListRuns returns the runs recorded under worldDir, oldest first.
func ListRuns(worldDir string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(worldDir, runsDir))
	if err != nil {
		return nil, err
	}
	var runs []string
	for _, e := range ents {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	slices.Sort(runs)
	return runs, nil
}

// LatestRun returns the most recently started run under worldDir.
func LatestRun(worldDir string) (string, error) {
	runs, err := ListRuns(worldDir)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs under %s", filepath.Join(worldDir, runsDir))
	}
	return runs[len(runs)-1], nil
}

// SegmentWriter appends JSON lines to hour-long zstd segments of one stream
// (<dir>/<stream>-YYYY-MM-DD-HH.jsonl.zst). Safe for concurrent use.
type SegmentWriter struct {
	dir    string
	stream string
	clock  func() time.Time

	mu    sync.Mutex
	seg   *segment
	lines uint64
}

type segment struct {
	hour string
	f    *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
}

func NewSegmentWriter(dir, stream string) *SegmentWriter {
	return &SegmentWriter{dir: dir, stream: stream, clock: time.Now}
}

// Lines is the number of lines written so far.
func (w *SegmentWriter) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *SegmentWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.clock().UTC().Format("2006-01-02-15")
	if w.seg == nil || w.seg.hour != hour {
		if err := w.swap(hour); err != nil {
			return err
		}
	}
	if _, err := w.seg.bw.Write(b); err != nil {
		return err
	}
	// Lines reach the encoder right away; the encoder still batches blocks.
	if err := w.seg.bw.Flush(); err != nil {
		return err
	}
	w.lines++
	return nil
}

func (w *SegmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.seg.close()
	w.seg = nil
	return err
}

func (w *SegmentWriter) swap(hour string) error {
	if err := w.seg.close(); err != nil {
		return err
	}
	w.seg = nil
	seg, err := openSegment(filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.stream, hour)), hour)
	if err != nil {
		return err
	}
	w.seg = seg
	return nil
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// A segment may be reopened after a clock step back; zstd frames concatenate.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, f: f, zw: zw, bw: bufio.NewWriterSize(zw, 64*1024)}, nil
}

// close is a no-op on a nil segment.
func (s *segment) close() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.bw.Flush(), s.zw.Close(), s.f.Sync(), s.f.Close())
}

// TickLogger writes one line per tick of a single run.
type TickLogger struct{ w *SegmentWriter }

func NewTickLogger(worldDir, run string) *TickLogger {
	return &TickLogger{w: NewSegmentWriter(RunDir(worldDir, run), "ticks")}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// FaultEntry records a run that stopped on a broken invariant.
type FaultEntry struct {
	WorldID  string `json:"world_id"`
	Run      string `json:"run"`
	Tick     uint64 `json:"tick"`
	Phase    string `json:"phase"`
	X        uint   `json:"x"`
	Y        uint   `json:"y"`
	Error    string `json:"error"`
	UnixMS   int64  `json:"unix_ms"`
	Entities int    `json:"entities"`
}

type FaultLogger struct {
	run string
	w   *SegmentWriter
}

func NewFaultLogger(worldDir, run string) *FaultLogger {
	return &FaultLogger{run: run, w: NewSegmentWriter(RunDir(worldDir, run), "faults")}
}

func (l *FaultLogger) WriteInvariant(worldID string, entities int, ie *world.InvariantError) error {
	return l.w.Write(FaultEntry{
		WorldID:  worldID,
		Run:      l.run,
		Tick:     ie.Tick,
		Phase:    ie.Phase,
		X:        ie.Location.X(),
		Y:        ie.Location.Y(),
		Error:    ie.Error(),
		UnixMS:   time.Now().UnixMilli(),
		Entities: entities,
	})
}

func (l *FaultLogger) Close() error { return l.w.Close() }

// ReadTickLogs decodes the tick segments of one run in hour order and calls fn
// for each entry. An error from fn stops the scan and is returned.
func ReadTickLogs(worldDir, run string, fn func(world.TickLogEntry) error) error {
	dir := RunDir(worldDir, run)
	files, err := filepath.Glob(filepath.Join(dir, "ticks-*.jsonl.zst"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no tick logs under %s", dir)
	}
	slices.Sort(files)
	for _, path := range files {
		if err := readSegment(path, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func readSegment(path string, fn func(world.TickLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	for {
		var e world.TickLogEntry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
