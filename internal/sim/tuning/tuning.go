package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gridswarm/internal/sim/rng"
	"gridswarm/internal/sim/world"
)

type Tuning struct {
	Width    int `yaml:"width" json:"width"`
	Height   int `yaml:"height" json:"height"`
	Entities int `yaml:"entities" json:"entities"`

	Seed          uint64 `yaml:"seed" json:"seed"`
	Workers       int    `yaml:"workers" json:"workers"`
	TickRateHz    int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	RNGBufferSize int    `yaml:"rng_buffer_size" json:"rng_buffer_size"`

	FrameEveryTicks     int  `yaml:"frame_every_ticks" json:"frame_every_ticks"`
	ReportEveryTicks    int  `yaml:"report_every_ticks" json:"report_every_ticks"`
	VerifyInvariants    bool `yaml:"verify_invariants" json:"verify_invariants"`
	PopulateMaxAttempts int  `yaml:"populate_max_attempts" json:"populate_max_attempts"`
}

// Defaults matches configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		Width:               1800,
		Height:              900,
		Entities:            50000,
		Seed:                1,
		TickRateHz:          60,
		RNGBufferSize:       100_000,
		FrameEveryTicks:     1,
		ReportEveryTicks:    32,
		PopulateMaxAttempts: 0,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize replaces out-of-range operational knobs with their defaults.
// Workers 0 means one per CPU and is resolved by the processor.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.Workers < 0 {
		t.Workers = 0
	}
	if t.TickRateHz < 0 {
		t.TickRateHz = 0
	}
	if t.RNGBufferSize <= 0 {
		t.RNGBufferSize = d.RNGBufferSize
	}
	if t.FrameEveryTicks <= 0 {
		t.FrameEveryTicks = d.FrameEveryTicks
	}
	if t.ReportEveryTicks <= 0 {
		t.ReportEveryTicks = d.ReportEveryTicks
	}
	if t.PopulateMaxAttempts < 0 {
		t.PopulateMaxAttempts = 0
	}
}

// MaxTickRateHz bounds tick_rate_hz; 0 already means "as fast as possible".
const MaxTickRateHz = 10_000

func (t Tuning) Validate() error {
	var errs []error
	if t.Width <= 0 || t.Height <= 0 {
		errs = append(errs, fmt.Errorf("width and height must be positive, got %dx%d", t.Width, t.Height))
	}
	if t.TickRateHz > MaxTickRateHz {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be <= %d, got %d", MaxTickRateHz, t.TickRateHz))
	}
	if t.Entities < 0 {
		errs = append(errs, fmt.Errorf("entities must be >= 0, got %d", t.Entities))
	}
	if t.Width > 0 && t.Height > 0 && t.Entities > t.Width*t.Height {
		errs = append(errs, fmt.Errorf("entities %d exceed %d cells", t.Entities, t.Width*t.Height))
	}
	return errors.Join(errs...)
}

func (t Tuning) ProcessorConfig(worldID string) world.ProcessorConfig {
	return world.ProcessorConfig{
		ID:               worldID,
		Workers:          t.Workers,
		TickRateHz:       t.TickRateHz,
		Seed:             t.Seed,
		RNGBufferSize:    t.RNGBufferSize,
		FrameEveryTicks:  t.FrameEveryTicks,
		ReportEveryTicks: t.ReportEveryTicks,
		VerifyInvariants: t.VerifyInvariants,
	}
}

// populateSalt separates the population stream from the per-worker step
// streams, which are seeded seed, seed+1, ...
const populateSalt = 0x5eed_0f_9a7d

// NewWorld builds and populates the world described by t. The result depends
// only on t, so replays rebuild the same initial state.
func (t Tuning) NewWorld() (*world.World, error) {
	w := world.New(t.Width, t.Height)
	src := rng.NewBuffer(t.RNGBufferSize, t.Seed^populateSalt)
	if _, err := world.Populate(w, t.Entities, src, t.PopulateMaxAttempts); err != nil {
		return nil, err
	}
	return w, nil
}
