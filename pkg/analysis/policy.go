package analysis

import (
	"fmt"
	"math"

	perrors "github.com/logflow/procinsight/pkg/errors"
)

// EfficiencyWeights weight the frequency, duration and resource terms of
// the activity efficiency score.
type EfficiencyWeights struct {
	Frequency float64 `yaml:"frequency"`
	Duration  float64 `yaml:"duration"`
	Resources float64 `yaml:"resources"`
}

// BottleneckWeights weight the duration and frequency terms of the
// bottleneck score.
type BottleneckWeights struct {
	Duration  float64 `yaml:"duration"`
	Frequency float64 `yaml:"frequency"`
}

// WasteWeights weight the duration and inefficiency terms of the waste score.
type WasteWeights struct {
	Duration     float64 `yaml:"duration"`
	Inefficiency float64 `yaml:"inefficiency"`
}

// TransitionWeights weight the frequency and duration terms of the
// transition efficiency score.
type TransitionWeights struct {
	Frequency float64 `yaml:"frequency"`
	Duration  float64 `yaml:"duration"`
}

// Weights groups the fixed weights of every score.
type Weights struct {
	Efficiency EfficiencyWeights `yaml:"efficiency"`
	Bottleneck BottleneckWeights `yaml:"bottleneck"`
	Waste      WasteWeights      `yaml:"waste"`
	Transition TransitionWeights `yaml:"transition"`
}

// Policy holds every tunable constant of the scoring and ranking stages.
// Durations are milliseconds.
type Policy struct {
	ActivityWindowMs   float64 `yaml:"activity_window_ms"`
	TransitionWindowMs float64 `yaml:"transition_window_ms"`

	FrequencySaturation           float64 `yaml:"frequency_saturation"`
	TransitionFrequencySaturation float64 `yaml:"transition_frequency_saturation"`
	ResourceSaturation            float64 `yaml:"resource_saturation"`

	Weights Weights `yaml:"weights"`

	NodeCap int `yaml:"node_cap"`

	BottleneckThreshold    float64 `yaml:"bottleneck_threshold"`
	CriticalThreshold      float64 `yaml:"critical_threshold"`
	WasteThreshold         float64 `yaml:"waste_threshold"`
	HighWasteThreshold     float64 `yaml:"high_waste_threshold"`
	EfficiencyThreshold    float64 `yaml:"efficiency_threshold"`
	EfficiencyMinFrequency int     `yaml:"efficiency_min_frequency"`
	TopEfficient           int     `yaml:"top_efficient"`

	TopVariants int `yaml:"top_variants"`
}

// DefaultPolicy returns the stock scoring policy: a one hour reference
// window for activities, thirty minutes for transitions.
func DefaultPolicy() Policy {
	return Policy{
		ActivityWindowMs:   3_600_000,
		TransitionWindowMs: 1_800_000,

		FrequencySaturation:           100,
		TransitionFrequencySaturation: 50,
		ResourceSaturation:            5,

		Weights: Weights{
			Efficiency: EfficiencyWeights{Frequency: 0.4, Duration: 0.4, Resources: 0.2},
			Bottleneck: BottleneckWeights{Duration: 0.7, Frequency: 0.3},
			Waste:      WasteWeights{Duration: 0.6, Inefficiency: 0.4},
			Transition: TransitionWeights{Frequency: 0.5, Duration: 0.5},
		},

		NodeCap: 20,

		BottleneckThreshold:    0.7,
		CriticalThreshold:      0.9,
		WasteThreshold:         0.6,
		HighWasteThreshold:     0.8,
		EfficiencyThreshold:    0.8,
		EfficiencyMinFrequency: 10,
		TopEfficient:           3,

		TopVariants: 10,
	}
}

// Validate rejects policies that would make scores meaningless.
func (p Policy) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"activity_window_ms", p.ActivityWindowMs},
		{"transition_window_ms", p.TransitionWindowMs},
		{"frequency_saturation", p.FrequencySaturation},
		{"transition_frequency_saturation", p.TransitionFrequencySaturation},
		{"resource_saturation", p.ResourceSaturation},
	}
	for _, f := range positive {
		if !(f.value > 0) {
			return perrors.New(perrors.CodeValidationFailed, "policy value must be positive").
				WithContext("field", f.name).WithContext("value", f.value)
		}
	}

	w := p.Weights
	weights := []float64{
		w.Efficiency.Frequency, w.Efficiency.Duration, w.Efficiency.Resources,
		w.Bottleneck.Duration, w.Bottleneck.Frequency,
		w.Waste.Duration, w.Waste.Inefficiency,
		w.Transition.Frequency, w.Transition.Duration,
	}
	for _, v := range weights {
		if v < 0 || math.IsNaN(v) {
			return perrors.New(perrors.CodeValidationFailed, "policy weights must be non-negative").
				WithContext("weight", v)
		}
	}

	if p.NodeCap <= 0 {
		return perrors.New(perrors.CodeValidationFailed, fmt.Sprintf("node cap must be positive, got %d", p.NodeCap))
	}
	if p.TopEfficient < 0 || p.TopVariants < 0 {
		return perrors.New(perrors.CodeValidationFailed, "top-N limits must not be negative")
	}
	return nil
}

// Efficiency rewards high frequency, short duration and resource diversity.
func (p Policy) Efficiency(freq int, avgDurMs float64, resourceCount int) float64 {
	w := p.Weights.Efficiency
	return clamp01(
		w.Frequency*saturate(float64(freq), p.FrequencySaturation) +
			w.Duration*headroom(avgDurMs, p.ActivityWindowMs) +
			w.Resources*saturate(float64(resourceCount), p.ResourceSaturation))
}

// BottleneckScore grows with duration and frequency.
func (p Policy) BottleneckScore(avgDurMs float64, freq int) float64 {
	w := p.Weights.Bottleneck
	return clamp01(
		w.Duration*saturate(avgDurMs, p.ActivityWindowMs) +
			w.Frequency*saturate(float64(freq), p.FrequencySaturation))
}

// WasteScore grows with duration and inefficiency.
func (p Policy) WasteScore(avgDurMs, efficiency float64) float64 {
	w := p.Weights.Waste
	return clamp01(
		w.Duration*saturate(avgDurMs, p.ActivityWindowMs) +
			w.Inefficiency*(1-efficiency))
}

// TransitionEfficiency rewards frequent, fast hand-overs.
func (p Policy) TransitionEfficiency(freq int, avgDurMs float64) float64 {
	w := p.Weights.Transition
	return clamp01(
		w.Frequency*saturate(float64(freq), p.TransitionFrequencySaturation) +
			w.Duration*headroom(avgDurMs, p.TransitionWindowMs))
}

// saturate returns min(v/limit, 1), or 0 for a non-positive limit.
func saturate(v, limit float64) float64 {
	if !(limit > 0) {
		return 0
	}
	return math.Min(v/limit, 1)
}

// headroom returns max(0, 1 - v/limit), or 0 for a non-positive limit.
func headroom(v, limit float64) float64 {
	if !(limit > 0) {
		return 0
	}
	return math.Max(0, 1-v/limit)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
