package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRegressor struct{}

func (failingRegressor) Predict([featureCount]float64) ([outputCount]float64, error) {
	return [outputCount]float64{}, errors.New("boom")
}

type constRegressor [outputCount]float64

func (c constRegressor) Predict([featureCount]float64) ([outputCount]float64, error) {
	return c, nil
}

func TestCalibrator_MissingArtifactFallsBack(t *testing.T) {
	c := NewCalibrator(filepath.Join(t.TempDir(), "missing.json"), nil)

	err := c.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.False(t, c.Available())

	dust, gas, calibrated := c.Correct(150, 200, 25, 90)
	assert.Equal(t, 150.0, dust)
	assert.Equal(t, 200.0, gas)
	assert.False(t, calibrated)
}

func TestCalibrator_EmptyPathFallsBack(t *testing.T) {
	c := NewCalibrator("", nil)

	dust, gas, calibrated := c.Correct(12.5, 80, 20, 40)
	assert.Equal(t, 12.5, dust)
	assert.Equal(t, 80.0, gas)
	assert.False(t, calibrated)
}

func TestCalibrator_CorruptArtifactFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind": "forest", "features": [`), 0o600))

	c := NewCalibrator(path, nil)
	assert.ErrorIs(t, c.Load(), ErrModelUnavailable)

	dust, _, calibrated := c.Correct(42, 10, 20, 50)
	assert.Equal(t, 42.0, dust)
	assert.False(t, calibrated)
}

func TestCalibrator_ForestLowersDustInFog(t *testing.T) {
	c := NewCalibrator(filepath.Join("testdata", "humidity_forest.yaml"), nil)
	require.NoError(t, c.Load())

	dust, gas, calibrated := c.Correct(150, 200, 25, 90)
	require.True(t, calibrated)
	assert.Less(t, dust, 150.0)
	// mean of the humid leaves (100, 110) and (200, 196)
	assert.InDelta(t, 105.0, dust, 1e-9)
	assert.InDelta(t, 198.0, gas, 1e-9)

	dryDust, _, _ := c.Correct(150, 200, 25, 40)
	assert.Greater(t, dryDust, dust)
}

func TestCalibrator_JSONLinearArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_calibration_model.json")
	artifact := `{
		"kind": "linear",
		"features": ["raw_dust", "raw_gas", "temperature", "humidity"],
		"outputs": ["corrected_dust", "corrected_gas"],
		"intercept": [105, 0],
		"coefficients": [[1, 0, 0, -1.5], [0, 1, 0, 0]]
	}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o600))

	c := NewCalibrator(path, nil)
	require.NoError(t, c.Load())

	dust, gas, calibrated := c.Correct(150, 200, 25, 90)
	assert.True(t, calibrated)
	assert.InDelta(t, 120.0, dust, 1e-9)
	assert.InDelta(t, 200.0, gas, 1e-9)
}

func TestCalibrator_ClampsNegativePredictions(t *testing.T) {
	c := NewCalibratorWithModel(constRegressor{-3, -0.5}, nil)

	dust, gas, calibrated := c.Correct(1, 1, 20, 95)
	assert.True(t, calibrated)
	assert.Equal(t, 0.0, dust)
	assert.Equal(t, 0.0, gas)
}

func TestCalibrator_InferenceErrorFallsBack(t *testing.T) {
	c := NewCalibratorWithModel(failingRegressor{}, nil)
	require.NoError(t, c.Load())

	dust, gas, calibrated := c.Correct(33, 44, 20, 50)
	assert.Equal(t, 33.0, dust)
	assert.Equal(t, 44.0, gas)
	assert.False(t, calibrated)
}

func TestCalibrator_NilModel(t *testing.T) {
	c := NewCalibratorWithModel(nil, nil)
	assert.False(t, c.Available())
}

func TestCalibrator_ConcurrentCorrect(t *testing.T) {
	c := NewCalibrator(filepath.Join("testdata", "humidity_forest.yaml"), nil)

	var wg sync.WaitGroup
	results := make([]float64, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dust, _, _ := c.Correct(150, 200, 25, 90)
			results[i] = dust
		}(i)
	}
	wg.Wait()

	for _, dust := range results {
		assert.InDelta(t, 105.0, dust, 1e-9)
	}
}
