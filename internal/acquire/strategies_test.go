package acquire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabeledAverageExtractor(t *testing.T) {
	e := NewLabeledAverageExtractor()
	ctx := context.Background()

	t.Run("tabular disclosure row", func(t *testing.T) {
		text := "Contaminant | Violation | Level\nChlorine | NO | 0.84 Avg. | 0.23 - 1.82"
		ext, ok, err := e.Extract(ctx, text)

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 0.84, ext.AveragePPM)
		require.NotNil(t, ext.MinPPM)
		require.NotNil(t, ext.MaxPPM)
		assert.Equal(t, 0.23, *ext.MinPPM)
		assert.Equal(t, 1.82, *ext.MaxPPM)
		assert.False(t, ext.EstimatedRange)
		assert.Equal(t, MethodLabeledAverage, ext.Method)
	})

	t.Run("avg column without range", func(t *testing.T) {
		ext, ok, err := e.Extract(ctx, "Chlorine NO 1.1 Avg.")

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1.1, ext.AveragePPM)
	})

	t.Run("no chlorine row", func(t *testing.T) {
		_, ok, err := e.Extract(ctx, "Lead | NO | 0.002 Avg.")

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLabeledValueExtractor(t *testing.T) {
	e := NewLabeledValueExtractor()
	ctx := context.Background()

	t.Run("plain statement", func(t *testing.T) {
		ext, ok, err := e.Extract(ctx, "Average chlorine: 1.2 ppm across all sampling points.")

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1.2, ext.AveragePPM)
	})

	t.Run("mg/L unit", func(t *testing.T) {
		ext, ok, err := e.Extract(ctx, "chlorine 0.9 mg/L")

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 0.9, ext.AveragePPM)
	})

	t.Run("value outside sanity bound skipped", func(t *testing.T) {
		_, ok, err := e.Extract(ctx, "chlorine: 2024 ppm")

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCompoundNameExtractor(t *testing.T) {
	e := NewCompoundNameExtractor()
	ctx := context.Background()

	t.Run("sodium hypochlorite", func(t *testing.T) {
		ext, ok, err := e.Extract(ctx, "Treated with sodium hypochlorite: 1.4 ppm residual.")

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1.4, ext.AveragePPM)
	})

	t.Run("disinfectant residual", func(t *testing.T) {
		ext, ok, err := e.Extract(ctx, "Disinfectant residual: 0.75 mg/l")

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 0.75, ext.AveragePPM)
	})
}

func TestRangeMeanExtractor(t *testing.T) {
	e := NewRangeMeanExtractor()
	ctx := context.Background()

	t.Run("band without an average column", func(t *testing.T) {
		ext, ok, err := e.Extract(ctx, "Chlorine (detected range): 0.6 - 1.4 ppm")

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1.0, ext.AveragePPM)
		require.NotNil(t, ext.MinPPM)
		require.NotNil(t, ext.MaxPPM)
		assert.Equal(t, 0.6, *ext.MinPPM)
		assert.Equal(t, 1.4, *ext.MaxPPM)
		assert.False(t, ext.EstimatedRange)
		assert.Equal(t, MethodRangeMean, ext.Method)
		assert.Contains(t, ext.Notes, "mean of reported range")
	})

	t.Run("disinfectant residual band", func(t *testing.T) {
		ext, ok, err := e.Extract(ctx, "Disinfectant residual ranged 0.23 - 1.82 mg/L")

		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 1.025, ext.AveragePPM, 1e-9)
	})

	t.Run("inverted band skipped", func(t *testing.T) {
		_, ok, err := e.Extract(ctx, "chlorine range 1.8 - 0.2 ppm")

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("midpoint outside sanity bound skipped", func(t *testing.T) {
		_, ok, err := e.Extract(ctx, "chlorine range 10 - 30 ppm")

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no band present", func(t *testing.T) {
		_, ok, err := e.Extract(ctx, "chlorine: 1.2 ppm")

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCompleteExtraction(t *testing.T) {
	t.Run("explicit range wins over estimate", func(t *testing.T) {
		ext := completeExtraction("average 1.0, range 0.4 - 1.6", 1.0, MethodLabeledValue)

		assert.Equal(t, 0.4, *ext.MinPPM)
		assert.Equal(t, 1.6, *ext.MaxPPM)
		assert.False(t, ext.EstimatedRange)
		assert.Empty(t, ext.Notes)
	})

	t.Run("derived range is tagged estimated", func(t *testing.T) {
		ext := completeExtraction("average 1.0 only", 1.0, MethodLabeledValue)

		assert.InDelta(t, 0.7, *ext.MinPPM, 1e-9)
		assert.InDelta(t, 1.3, *ext.MaxPPM, 1e-9)
		assert.True(t, ext.EstimatedRange)
		assert.NotEmpty(t, ext.Notes)
	})

	t.Run("inverted range falls back to estimate", func(t *testing.T) {
		ext := completeExtraction("bad range 2.0 - 1.0", 1.5, MethodLabeledValue)

		assert.True(t, ext.EstimatedRange)
	})

	t.Run("default sample count", func(t *testing.T) {
		ext := completeExtraction("just 1.0", 1.0, MethodLabeledValue)

		require.NotNil(t, ext.SampleCount)
		assert.Equal(t, defaultSampleCount, *ext.SampleCount)
	})
}
