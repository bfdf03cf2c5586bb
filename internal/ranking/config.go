package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrInvalidWeights is returned when a calibration produces unusable weights.
var ErrInvalidWeights = errors.New("invalid ranking weights")

// PersonalizedWeights defines the personalized feed formula and interleave policy.
type PersonalizedWeights struct {
	Category            float64 `json:"category"`              // Weight for summed category affinity (default: 0.6)
	Recency             float64 `json:"recency"`               // Weight for recency score (default: 0.2)
	Activity            float64 `json:"activity"`              // Weight for activity score (default: 0.2)
	RecencyHorizonHours float64 `json:"recency_horizon_hours"` // Recency reaches 0 after this age (default: 168)
	ActivityCap         float64 `json:"activity_cap"`          // Submissions at which activity saturates (default: 10)
	MatchedFraction     float64 `json:"matched_fraction"`      // Share of items in the matched pool (default: 0.8)
	SerendipityInterval int     `json:"serendipity_interval"`  // Every Nth output slot is serendipity (default: 5)
}

// TrendingWeights defines the trending formula.
type TrendingWeights struct {
	RecencyHorizonHours float64 `json:"recency_horizon_hours"` // Decay reaches 0 after this age (default: 72)
	ActivityCap         float64 `json:"activity_cap"`          // Submission count cap (default: 10)
}

// Weights holds all ranking weight configurations.
type Weights struct {
	Personalized PersonalizedWeights `json:"personalized"`
	Trending     TrendingWeights     `json:"trending"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
}

// DefaultWeights returns the documented ranking contract.
//
// Personalized: total = (category * 0.6) + (recency * 0.2) + (activity * 0.2)
// with a 7-day recency horizon, activity saturating at 10 submissions, an
// 80/20 matched/serendipity split and one serendipity slot per 5 positions.
//
// Trending: min(10, submissions) * recency decay over 3 days.
func DefaultWeights() *Weights {
	return &Weights{
		Personalized: PersonalizedWeights{
			Category:            0.6,
			Recency:             0.2,
			Activity:            0.2,
			RecencyHorizonHours: 24 * 7,
			ActivityCap:         10,
			MatchedFraction:     0.8,
			SerendipityInterval: 5,
		},
		Trending: TrendingWeights{
			RecencyHorizonHours: 24 * 3,
			ActivityCap:         10,
		},
	}
}

// RecencyHorizon returns the personalized recency horizon as a duration.
func (w PersonalizedWeights) RecencyHorizon() time.Duration {
	return hoursToDuration(w.RecencyHorizonHours)
}

// RecencyHorizon returns the trending recency horizon as a duration.
func (w TrendingWeights) RecencyHorizon() time.Duration {
	return hoursToDuration(w.RecencyHorizonHours)
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

// Validate reports all problems with the weights in a single error.
func (w *Weights) Validate() error {
	var problems []error

	p := w.Personalized
	if p.Category < 0 || p.Recency < 0 || p.Activity < 0 {
		problems = append(problems, errors.New("personalized weights must not be negative"))
	}
	if p.RecencyHorizonHours <= 0 {
		problems = append(problems, errors.New("personalized.recency_horizon_hours must be positive"))
	}
	if p.ActivityCap <= 0 {
		problems = append(problems, errors.New("personalized.activity_cap must be positive"))
	}
	if p.MatchedFraction < 0 || p.MatchedFraction > 1 {
		problems = append(problems, errors.New("personalized.matched_fraction must be within [0, 1]"))
	}
	if p.SerendipityInterval < 1 {
		problems = append(problems, errors.New("personalized.serendipity_interval must be at least 1"))
	}

	if w.Trending.RecencyHorizonHours <= 0 {
		problems = append(problems, errors.New("trending.recency_horizon_hours must be positive"))
	}
	if w.Trending.ActivityCap <= 0 {
		problems = append(problems, errors.New("trending.activity_cap must be positive"))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidWeights, errors.Join(problems...))
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// An empty path returns the defaults. Partial configurations are merged with
// defaults. On any error the defaults are returned alongside the error so the
// caller can keep serving.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("calibration file produced invalid weights, using defaults",
			"path", filePath,
			"error", err)
		return defaults, err
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero values from the override are applied.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := *base
	if override == nil {
		return &result
	}

	mergeFloat(&result.Personalized.Category, override.Personalized.Category)
	mergeFloat(&result.Personalized.Recency, override.Personalized.Recency)
	mergeFloat(&result.Personalized.Activity, override.Personalized.Activity)
	mergeFloat(&result.Personalized.RecencyHorizonHours, override.Personalized.RecencyHorizonHours)
	mergeFloat(&result.Personalized.ActivityCap, override.Personalized.ActivityCap)
	mergeFloat(&result.Personalized.MatchedFraction, override.Personalized.MatchedFraction)
	if override.Personalized.SerendipityInterval != 0 {
		result.Personalized.SerendipityInterval = override.Personalized.SerendipityInterval
	}

	mergeFloat(&result.Trending.RecencyHorizonHours, override.Trending.RecencyHorizonHours)
	mergeFloat(&result.Trending.ActivityCap, override.Trending.ActivityCap)

	return &result
}

func mergeFloat(dst *float64, override float64) {
	if override != 0 {
		*dst = override
	}
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	check := func(name string, def, got float64) {
		if def != got {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, def, got))
		}
	}

	check("personalized.category", defaults.Personalized.Category, loaded.Personalized.Category)
	check("personalized.recency", defaults.Personalized.Recency, loaded.Personalized.Recency)
	check("personalized.activity", defaults.Personalized.Activity, loaded.Personalized.Activity)
	check("personalized.recency_horizon_hours", defaults.Personalized.RecencyHorizonHours, loaded.Personalized.RecencyHorizonHours)
	check("personalized.activity_cap", defaults.Personalized.ActivityCap, loaded.Personalized.ActivityCap)
	check("personalized.matched_fraction", defaults.Personalized.MatchedFraction, loaded.Personalized.MatchedFraction)
	check("personalized.serendipity_interval",
		float64(defaults.Personalized.SerendipityInterval), float64(loaded.Personalized.SerendipityInterval))
	check("trending.recency_horizon_hours", defaults.Trending.RecencyHorizonHours, loaded.Trending.RecencyHorizonHours)
	check("trending.activity_cap", defaults.Trending.ActivityCap, loaded.Trending.ActivityCap)

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
