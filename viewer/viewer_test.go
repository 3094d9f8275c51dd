package viewer

import (
	"math"
	"testing"
)

func TestCalculateStats(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50}

	stats := calculateStats(data)

	expectedStdDev := math.Sqrt(200) // sqrt(((10-30)^2+(20-30)^2+0+(40-30)^2+(50-30)^2)/5)

	if stats.min != 10 {
		t.Errorf("Expected min to be 10, got %f", stats.min)
	}
	if stats.max != 50 {
		t.Errorf("Expected max to be 50, got %f", stats.max)
	}
	if stats.mean != 30 {
		t.Errorf("Expected mean to be 30, got %f", stats.mean)
	}
	if math.Abs(stats.stdDev-expectedStdDev) > 1e-9 {
		t.Errorf("Expected stdDev to be %f, got %f", expectedStdDev, stats.stdDev)
	}
}

func TestCalculateStats_Empty(t *testing.T) {
	stats := calculateStats(nil)
	if stats.min != 0 || stats.max != 0 || stats.mean != 0 || stats.stdDev != 0 {
		t.Errorf("Expected all stats to be 0 for empty data, got %+v", stats)
	}
}

func TestCalculateStats_Negative(t *testing.T) {
	stats := calculateStats([]float64{-5, 5})
	if stats.min != -5 || stats.max != 5 || stats.mean != 0 {
		t.Errorf("unexpected stats for symmetric data: %+v", stats)
	}
	if stats.stdDev != 5 {
		t.Errorf("Expected stdDev to be 5, got %f", stats.stdDev)
	}
}
