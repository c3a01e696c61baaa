// Package calibration corrects raw dust and gas readings of low-cost sensors
// with a pretrained regressor. When no usable model exists the raw values are
// passed through unchanged.
package calibration

import (
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"sync"
)

// ErrModelUnavailable marks a calibration that fell back to raw values
var ErrModelUnavailable = errors.New("calibration model unavailable")

// Calibrator lazily loads the artifact at path once and serves concurrent
// corrections from the immutable model.
type Calibrator struct {
	path   string
	logger *slog.Logger

	once    sync.Once
	model   Regressor
	loadErr error
}

// NewCalibrator creates a calibrator for the artifact at path. Nothing is read
// until the first Load or Correct call.
func NewCalibrator(path string, logger *slog.Logger) *Calibrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calibrator{path: path, logger: logger}
}

// NewCalibratorWithModel creates a calibrator around an already built regressor.
// A nil model behaves like a missing artifact.
func NewCalibratorWithModel(model Regressor, logger *slog.Logger) *Calibrator {
	c := NewCalibrator("", logger)
	c.once.Do(func() {
		c.model = model
		if model == nil {
			c.loadErr = ErrModelUnavailable
		}
	})
	return c
}

// Load reads the artifact if that has not happened yet and reports the outcome.
// The error is informational; Correct keeps working either way.
func (c *Calibrator) Load() error {
	c.once.Do(c.load)
	return c.loadErr
}

func (c *Calibrator) load() {
	if c.path == "" {
		c.loadErr = ErrModelUnavailable
		c.logger.Warn("No calibration model configured, using raw sensor values")
		return
	}

	model, err := LoadFile(c.path)
	if err != nil {
		c.loadErr = errors.Join(ErrModelUnavailable, err)
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Calibration model not found, using raw sensor values", slog.String("path", c.path))
		} else {
			c.logger.Warn("Failed to load calibration model, using raw sensor values",
				slog.String("path", c.path), slog.String("error", err.Error()))
		}
		return
	}

	c.model = model
	c.logger.Info("✓ Calibration model loaded", slog.String("path", c.path))
}

// Available reports whether corrections come from a loaded model
func (c *Calibrator) Available() bool {
	return c.Load() == nil
}

// Correct returns the corrected dust and gas values. The third result is
// false when the raw values were passed through.
func (c *Calibrator) Correct(rawDust, rawGas, temperature, humidity float64) (float64, float64, bool) {
	if err := c.Load(); err != nil {
		return rawDust, rawGas, false
	}

	prediction, err := c.model.Predict([featureCount]float64{rawDust, rawGas, temperature, humidity})
	if err != nil {
		c.logger.Warn("Calibration inference failed, using raw sensor values",
			slog.Float64("raw_dust", rawDust),
			slog.Float64("raw_gas", rawGas),
			slog.String("error", err.Error()))
		return rawDust, rawGas, false
	}

	return math.Max(0, prediction[0]), math.Max(0, prediction[1]), true
}
