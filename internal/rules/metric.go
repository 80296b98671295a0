// internal/rules/metric.go
package rules

import (
	"github.com/solatis/healthsignals/internal/types"
)

/*
 * Metric resolution against a HealthMetrics snapshot.
 *
 * Rule sheets reference metrics by symbol. The supported set is closed:
 *   - sleep_total_mins_z            sleep duration (minutes)
 *   - hrv_sdnn_z                    heart-rate variability (SDNN, ms)
 *   - resting_hr_z                  resting heart rate (bpm)
 *   - sleep_fragmentation_index_z   sleep fragmentation index
 *
 * Symbols are matched exactly (case-sensitive, untrimmed). Anything else is
 * MetricUnknown, which the signal evaluator reports as indeterminate.
 *
 * Feature type "z_score_vs_baseline" selects the standardized deviation of
 * yesterday's value from the 28-day average; any other feature type selects
 * yesterday's raw value.
 *
 * Standardization uses 15% of the baseline as the spread. This is a fixed
 * approximation of the population standard deviation and is kept exact so
 * results match existing rule sheets. A zero spread yields 0.
 */

// Metric identifies a supported physiological metric.
type Metric int

const (
	MetricUnknown Metric = iota
	MetricSleepTotalMins
	MetricHRVSDNN
	MetricRestingHR
	MetricSleepFragmentation
)

// Metric symbols as they appear in SIG{n}_ANNA_METRIC_NAME cells.
const (
	SymbolSleepTotalMins     = "sleep_total_mins_z"
	SymbolHRVSDNN            = "hrv_sdnn_z"
	SymbolRestingHR          = "resting_hr_z"
	SymbolSleepFragmentation = "sleep_fragmentation_index_z"
)

// FeatureZScoreVsBaseline selects standardized resolution.
const FeatureZScoreVsBaseline = "z_score_vs_baseline"

// BaselineSpreadRatio is the fraction of the baseline used as the spread.
const BaselineSpreadRatio = 0.15

// ParseMetric maps a metric symbol to a Metric. Unknown symbols return MetricUnknown.
func ParseMetric(symbol string) Metric {
	switch symbol {
	case SymbolSleepTotalMins:
		return MetricSleepTotalMins
	case SymbolHRVSDNN:
		return MetricHRVSDNN
	case SymbolRestingHR:
		return MetricRestingHR
	case SymbolSleepFragmentation:
		return MetricSleepFragmentation
	default:
		return MetricUnknown
	}
}

func (m Metric) String() string {
	switch m {
	case MetricSleepTotalMins:
		return SymbolSleepTotalMins
	case MetricHRVSDNN:
		return SymbolHRVSDNN
	case MetricRestingHR:
		return SymbolRestingHR
	case MetricSleepFragmentation:
		return SymbolSleepFragmentation
	default:
		return "unknown"
	}
}

// Standardize returns (current - baseline) / (baseline * 0.15), or 0 when the
// spread is zero.
func Standardize(current, baseline float64) float64 {
	spread := baseline * BaselineSpreadRatio
	if spread == 0 {
		return 0
	}
	return (current - baseline) / spread
}

// ResolveMetric returns the value a signal compares against.
// Returns false for MetricUnknown.
func ResolveMetric(metric Metric, m types.HealthMetrics, featureType string) (float64, bool) {
	current, baseline, ok := readings(metric, m)
	if !ok {
		return 0, false
	}
	if featureType == FeatureZScoreVsBaseline {
		return Standardize(current, baseline), true
	}
	return current, true
}

// readings returns yesterday's value and the 28-day average for metric.
func readings(metric Metric, m types.HealthMetrics) (current, baseline float64, ok bool) {
	switch metric {
	case MetricSleepTotalMins:
		return m.SleepTotalMinsYesterday, m.SleepTotalMinsLast28Days, true
	case MetricHRVSDNN:
		return m.HRVYesterday, m.HRVAvgLast28Days, true
	case MetricRestingHR:
		return m.RestingHRYesterday, m.RestingHRAvgLast28Days, true
	case MetricSleepFragmentation:
		return m.SleepFragmentationYesterday, m.SleepFragmentationAvgLast28Days, true
	default:
		return 0, 0, false
	}
}
