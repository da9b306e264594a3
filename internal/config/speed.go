package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Seconds is a duration read from the environment either as a bare number of
// seconds ("20", "0.5") or as a Go duration string ("20s", "1m30s").
type Seconds time.Duration

// Decode implements envconfig.Decoder.
func (s *Seconds) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*s = 0
		return nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		if f < 0 {
			return fmt.Errorf("negative duration %q", value)
		}
		*s = Seconds(time.Duration(f * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*s = Seconds(d)
	return nil
}

// Duration returns the value as a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

// speedPreset holds the catalog/thumbnail knobs a PROFILE_SPEED value sets.
type speedPreset struct {
	concurrency      int
	batchSize        int
	baseDelayMS      int
	retries          int
	thumbConcurrency int
}

var speedPresets = map[string]speedPreset{
	"gentle":  {concurrency: 2, batchSize: 60, baseDelayMS: 700, retries: 8, thumbConcurrency: 4},
	"fast":    {concurrency: 4, batchSize: 100, baseDelayMS: 350, retries: 6, thumbConcurrency: 8},
	"extreme": {concurrency: 8, batchSize: 120, baseDelayMS: 150, retries: 6, thumbConcurrency: 16},
}

// applySpeedProfile overrides every preset knob the environment does not set explicitly.
func (c *Config) applySpeedProfile() error {
	name := strings.ToLower(strings.TrimSpace(c.Speed))
	if name == "" {
		return nil
	}
	p, ok := speedPresets[name]
	if !ok {
		return fmt.Errorf("unknown PROFILE_SPEED %q (want gentle, fast or extreme)", c.Speed)
	}

	setIfUnset := func(env string, dst *int, v int) {
		if _, set := os.LookupEnv(env); !set {
			*dst = v
		}
	}
	setIfUnset("CATALOG_CONCURRENCY", &c.Catalog.Concurrency, p.concurrency)
	setIfUnset("CATALOG_BATCH_SIZE", &c.Catalog.BatchSize, p.batchSize)
	setIfUnset("CATALOG_BASE_DELAY_MS", &c.Catalog.BaseDelayMS, p.baseDelayMS)
	setIfUnset("CATALOG_RETRIES", &c.Catalog.Retries, p.retries)
	setIfUnset("THUMB_DL_CONCURRENCY", &c.Thumbs.Concurrency, p.thumbConcurrency)

	c.Speed = name
	return nil
}
