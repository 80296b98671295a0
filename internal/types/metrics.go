package types

import (
	"fmt"
	"math"
	"time"
)

// HealthMetrics is one user's measurement snapshot for a single evaluation.
// Values are passed by value and never mutated by the engine.
type HealthMetrics struct {
	SleepTotalMinsYesterday  float64 `json:"sleep_total_mins_yesterday"`
	SleepTotalMinsLast28Days float64 `json:"sleep_total_mins_last_28_days"`

	HRVYesterday     float64 `json:"hrv_yesterday"`
	HRVAvgLast28Days float64 `json:"hrv_avg_last_28_days"`

	RestingHRYesterday     float64 `json:"resting_hr_yesterday"`
	RestingHRAvgLast28Days float64 `json:"resting_hr_avg_last_28_days"`

	SleepFragmentationYesterday     float64 `json:"sleep_fragmentation_yesterday"`
	SleepFragmentationAvgLast28Days float64 `json:"sleep_fragmentation_avg_last_28_days"`

	Age        int       `json:"age"`
	LastPeriod time.Time `json:"lastPeriod"`
}

// Bounds applied by Validate at the service boundary.
const (
	MinAge          = 1
	MaxAge          = 120
	MaxSleepMinutes = 24 * 60
)

// Validate checks the snapshot against the ranges the metrics provider
// guarantees. The engine itself never calls Validate; it degrades gracefully
// on any numeric input. Returns an error wrapping ErrInvalidMetrics.
func (m HealthMetrics) Validate() error {
	if m.Age < MinAge || m.Age > MaxAge {
		return fmt.Errorf("%w: age must be between %d and %d, got %d", ErrInvalidMetrics, MinAge, MaxAge, m.Age)
	}

	fields := []struct {
		name  string
		value float64
	}{
		{"sleep_total_mins_yesterday", m.SleepTotalMinsYesterday},
		{"sleep_total_mins_last_28_days", m.SleepTotalMinsLast28Days},
		{"hrv_yesterday", m.HRVYesterday},
		{"hrv_avg_last_28_days", m.HRVAvgLast28Days},
		{"resting_hr_yesterday", m.RestingHRYesterday},
		{"resting_hr_avg_last_28_days", m.RestingHRAvgLast28Days},
		{"sleep_fragmentation_yesterday", m.SleepFragmentationYesterday},
		{"sleep_fragmentation_avg_last_28_days", m.SleepFragmentationAvgLast28Days},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidMetrics, f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidMetrics, f.name, f.value)
		}
	}

	if m.SleepTotalMinsYesterday > MaxSleepMinutes {
		return fmt.Errorf("%w: sleep_total_mins_yesterday cannot exceed %d minutes", ErrInvalidMetrics, MaxSleepMinutes)
	}

	return nil
}
