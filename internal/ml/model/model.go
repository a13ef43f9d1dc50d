// Package model holds the linear model artifacts served for prediction and their exact SHAP explanation.
package model

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

type Kind string

const (
	// KindLogistic is a binary classifier; the margin is the log-odds of class 1.
	KindLogistic Kind = "logistic"
	// KindLinear is a least-squares regressor.
	KindLinear Kind = "linear"
)

// Artifact is the YAML document stored as <name>.yaml in the model directory.
type Artifact struct {
	Name      string             `yaml:"name"`
	Kind      Kind               `yaml:"kind"`
	Version   string             `yaml:"version,omitempty"`
	Features  []string           `yaml:"features"`
	Weights   map[string]float64 `yaml:"weights"`
	Intercept float64            `yaml:"intercept"`
	// Means is the training baseline used as the SHAP reference point.
	Means  map[string]float64 `yaml:"means,omitempty"`
	Scaler *Scaler            `yaml:"scaler,omitempty"`
	// Metrics are training-set scores, e.g. accuracy or rmse.
	Metrics   map[string]float64 `yaml:"metrics,omitempty"`
	TrainedAt string             `yaml:"trained_at,omitempty"`
}

// Scaler standardizes each feature as (x - mean) / std before weights apply.
type Scaler struct {
	Mean map[string]float64 `yaml:"mean"`
	Std  map[string]float64 `yaml:"std"`
}

// Validate checks the artifact is usable for prediction.
func (a *Artifact) Validate() error {
	if a.Name == "" {
		return errors.New("artifact name is required")
	}
	if a.Kind != KindLogistic && a.Kind != KindLinear {
		return fmt.Errorf("artifact kind %q must be logistic or linear", a.Kind)
	}
	if len(a.Features) == 0 {
		return errors.New("artifact has no features")
	}
	seen := make(map[string]bool, len(a.Features))
	for _, f := range a.Features {
		if seen[f] {
			return fmt.Errorf("duplicate feature %q", f)
		}
		seen[f] = true
		if _, ok := a.Weights[f]; !ok {
			return fmt.Errorf("no weight for feature %q", f)
		}
	}
	return nil
}

// TypeName is the estimator name reported by model info.
func (a *Artifact) TypeName() string {
	if a.Kind == KindLogistic {
		return "LogisticRegression"
	}
	return "LinearRegression"
}

// scaled returns the value the weight of feature f multiplies.
func (a *Artifact) scaled(f string, x float64) float64 {
	if a.Scaler == nil {
		return x
	}
	sd := a.Scaler.Std[f]
	if sd == 0 {
		sd = 1
	}
	return (x - a.Scaler.Mean[f]) / sd
}

// baseline is the reference value of feature f for explanations.
func (a *Artifact) baseline(f string) float64 {
	if m, ok := a.Means[f]; ok {
		return m
	}
	if a.Scaler != nil {
		return a.Scaler.Mean[f]
	}
	return 0
}

// Margin is the linear score for x, ordered as a.Features.
func (a *Artifact) Margin(x []float64) float64 {
	m := a.Intercept
	for i, f := range a.Features {
		m += a.Weights[f] * a.scaled(f, x[i])
	}
	return m
}

// Result is a single prediction.
type Result struct {
	Prediction  float64
	Probability float64
	Confidence  float64
}

// Predict scores x. A classifier predicts 1 when p >= 0.5 and reports max(p, 1-p) as confidence;
// a regressor reports probability and confidence of 1.
func (a *Artifact) Predict(x []float64) Result {
	m := a.Margin(x)
	if a.Kind == KindLinear {
		return Result{Prediction: m, Probability: 1, Confidence: 1}
	}
	p := Sigmoid(m)
	class := 0.0
	if p >= 0.5 {
		class = 1
	}
	return Result{Prediction: class, Probability: p, Confidence: math.Max(p, 1-p)}
}

func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Contribution is one feature's SHAP value.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Explanation is an exact SHAP decomposition of the margin: BaseValue plus the sum of
// Values equals Margin(x).
type Explanation struct {
	BaseValue float64
	Values    []Contribution
}

// Explain computes w_i * (z(x_i) - z(baseline_i)) per feature, sorted by absolute value
// descending. Ties keep feature order.
func (a *Artifact) Explain(x []float64) Explanation {
	base := a.Intercept
	values := make([]Contribution, len(a.Features))
	for i, f := range a.Features {
		w := a.Weights[f]
		ref := a.scaled(f, a.baseline(f))
		base += w * ref
		values[i] = Contribution{Feature: f, Value: w * (a.scaled(f, x[i]) - ref)}
	}
	sort.SliceStable(values, func(i, j int) bool {
		return math.Abs(values[i].Value) > math.Abs(values[j].Value)
	})
	return Explanation{BaseValue: base, Values: values}
}

// TopFeatures returns up to n feature names in explanation order.
func (e Explanation) TopFeatures(n int) []string {
	out := make([]string, 0, min(n, len(e.Values)))
	for _, c := range e.Values[:min(n, len(e.Values))] {
		out = append(out, c.Feature)
	}
	return out
}

// Filter keeps only the named features, preserving order.
func (e Explanation) Filter(names []string) Explanation {
	if len(names) == 0 {
		return e
	}
	kept := make([]Contribution, 0, len(names))
	for _, c := range e.Values {
		if slices.Contains(names, c.Feature) {
			kept = append(kept, c)
		}
	}
	return Explanation{BaseValue: e.BaseValue, Values: kept}
}

// Map returns the values keyed by feature.
func (e Explanation) Map() map[string]float64 {
	out := make(map[string]float64, len(e.Values))
	for _, c := range e.Values {
		out[c.Feature] = c.Value
	}
	return out
}
