// Package train fits logistic and linear models by batch gradient descent on standardized features.
package train

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"bizlens/backend/internal/dataset/ingest"
	"bizlens/backend/internal/dataset/quality"
	"bizlens/backend/internal/ml/model"
)

// Options configure a training run. Zero values take the defaults below.
type Options struct {
	Name   string
	Kind   model.Kind
	Target string
	// Features restricts and orders the inputs. Empty means the model's fixed schema when it
	// has one, otherwise every numeric column except the target.
	Features     []string
	LearningRate float64
	Epochs       int
	L2           float64
	Now          func() time.Time
}

const (
	defaultLearningRate = 0.1
	defaultEpochs       = 500
	minRows             = 2
)

var (
	ErrNoTarget     = errors.New("target column is required")
	ErrTooFewRows   = errors.New("at least two rows are required")
	ErrBinaryTarget = errors.New("logistic target must contain only 0 and 1")
)

func (o *Options) defaults() {
	if o.LearningRate <= 0 {
		o.LearningRate = defaultLearningRate
	}
	if o.Epochs <= 0 {
		o.Epochs = defaultEpochs
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
}

// FromCSV parses and cleans a CSV file the way uploads are cleaned, then trains on it.
func FromCSV(r io.Reader, opts Options) (*model.Artifact, error) {
	t, err := ingest.Parse(r, ingest.MaxRows)
	if err != nil {
		return nil, err
	}
	ingest.Clean(t)
	return Train(t, opts)
}

// Train fits a model on a cleaned table.
func Train(t *ingest.Table, opts Options) (*model.Artifact, error) {
	opts.defaults()
	if opts.Name == "" {
		return nil, errors.New("model name is required")
	}
	if opts.Kind != model.KindLogistic && opts.Kind != model.KindLinear {
		return nil, fmt.Errorf("kind %q must be logistic or linear", opts.Kind)
	}
	if opts.Target == "" {
		return nil, ErrNoTarget
	}
	if len(t.Rows) < minRows {
		return nil, ErrTooFewRows
	}
	targetCol := slices.Index(t.Headers, opts.Target)
	if targetCol < 0 {
		return nil, fmt.Errorf("target column %q not found", opts.Target)
	}
	features, cols, err := selectFeatures(t, opts)
	if err != nil {
		return nil, err
	}

	X, y, err := matrix(t, cols, targetCol)
	if err != nil {
		return nil, err
	}
	if opts.Kind == model.KindLogistic {
		for _, v := range y {
			if v != 0 && v != 1 {
				return nil, ErrBinaryTarget
			}
		}
	}

	scaler := &model.Scaler{Mean: map[string]float64{}, Std: map[string]float64{}}
	for j, f := range features {
		mean, sd := meanStd(X, j)
		scaler.Mean[f], scaler.Std[f] = mean, sd
		for i := range X {
			X[i][j] = (X[i][j] - mean) / sd
		}
	}

	w, b := descend(X, y, opts)
	a := &model.Artifact{
		Name:      opts.Name,
		Kind:      opts.Kind,
		Features:  features,
		Weights:   make(map[string]float64, len(features)),
		Intercept: b,
		Means:     make(map[string]float64, len(features)),
		Scaler:    scaler,
		TrainedAt: opts.Now().Format(time.RFC3339),
	}
	for j, f := range features {
		a.Weights[f] = w[j]
		a.Means[f] = scaler.Mean[f]
	}
	a.Metrics = evaluate(opts.Kind, X, y, w, b)
	return a, nil
}

func selectFeatures(t *ingest.Table, opts Options) ([]string, []int, error) {
	names := opts.Features
	if len(names) == 0 {
		names = model.Schemas[opts.Name]
	}
	if len(names) == 0 {
		for i, h := range t.Headers {
			if h != opts.Target && t.Kinds[i] == ingest.KindNumber {
				names = append(names, h)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil, errors.New("no numeric feature columns")
	}
	cols := make([]int, len(names))
	for j, f := range names {
		if f == opts.Target {
			return nil, nil, fmt.Errorf("feature %q is the target", f)
		}
		if cols[j] = slices.Index(t.Headers, f); cols[j] < 0 {
			return nil, nil, fmt.Errorf("feature column %q not found", f)
		}
	}
	return names, cols, nil
}

func matrix(t *ingest.Table, cols []int, targetCol int) ([][]float64, []float64, error) {
	X := make([][]float64, len(t.Rows))
	y := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		v, ok := quality.ParseNumber(row[targetCol])
		if !ok {
			return nil, nil, fmt.Errorf("row %d: target %q is not numeric", i+1, row[targetCol])
		}
		y[i] = v
		X[i] = make([]float64, len(cols))
		for j, c := range cols {
			if X[i][j], ok = quality.ParseNumber(row[c]); !ok {
				return nil, nil, fmt.Errorf("row %d: %q is not numeric", i+1, row[c])
			}
		}
	}
	return X, y, nil
}

// meanStd returns the population mean and standard deviation of column j; a zero deviation is reported as 1.
func meanStd(X [][]float64, j int) (float64, float64) {
	var sum float64
	for _, r := range X {
		sum += r[j]
	}
	mean := sum / float64(len(X))
	var ss float64
	for _, r := range X {
		d := r[j] - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(X)))
	if sd == 0 {
		sd = 1
	}
	return mean, sd
}

func predict(kind model.Kind, x, w []float64, b float64) float64 {
	m := b
	for j := range w {
		m += w[j] * x[j]
	}
	if kind == model.KindLogistic {
		return model.Sigmoid(m)
	}
	return m
}

func descend(X [][]float64, y []float64, opts Options) ([]float64, float64) {
	n := float64(len(X))
	w := make([]float64, len(X[0]))
	grad := make([]float64, len(w))
	var b float64
	for range opts.Epochs {
		clear(grad)
		var gb float64
		for i, x := range X {
			e := predict(opts.Kind, x, w, b) - y[i]
			for j := range w {
				grad[j] += e * x[j]
			}
			gb += e
		}
		for j := range w {
			w[j] -= opts.LearningRate * (grad[j]/n + opts.L2*w[j])
		}
		b -= opts.LearningRate * gb / n
	}
	return w, b
}

func evaluate(kind model.Kind, X [][]float64, y, w []float64, b float64) map[string]float64 {
	n := float64(len(X))
	if kind == model.KindLogistic {
		var correct, loss float64
		for i, x := range X {
			p := predict(kind, x, w, b)
			if (p >= 0.5) == (y[i] == 1) {
				correct++
			}
			p = math.Min(math.Max(p, 1e-15), 1-1e-15)
			loss -= y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)
		}
		return map[string]float64{"accuracy": correct / n, "log_loss": loss / n}
	}
	var sse, mean, sst float64
	for _, v := range y {
		mean += v
	}
	mean /= n
	for i, x := range X {
		d := predict(kind, x, w, b) - y[i]
		sse += d * d
		sst += (y[i] - mean) * (y[i] - mean)
	}
	r2 := 0.0
	if sst > 0 {
		r2 = 1 - sse/sst
	}
	return map[string]float64{"rmse": math.Sqrt(sse / n), "r2": r2}
}
