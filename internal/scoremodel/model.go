package scoremodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Classifier is a fitted binary classifier. PredictProba returns class
// probabilities; a single-element result is treated as the positive class.
type Classifier interface {
	PredictProba(x []float64) ([]float64, error)
}

// Scaler normalizes a feature vector before classification.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
}

// Logistic is a logistic-regression classifier.
type Logistic struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (m *Logistic) PredictProba(x []float64) ([]float64, error) {
	if len(x) != len(m.Weights) {
		return nil, fmt.Errorf("feature length %d does not match %d weights", len(x), len(m.Weights))
	}
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}

// StandardScaler centers and scales each feature.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(x) != len(s.Scale) {
		return nil, fmt.Errorf("feature length %d does not match scaler dimensions", len(x))
	}
	out := make([]float64, len(x))
	for i := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x[i] - s.Mean[i]) / scale
	}
	return out, nil
}

// modelFile is the on-disk layout written by the external training job.
type modelFile struct {
	Scaler     *StandardScaler `json:"scaler"`
	Classifier *Logistic       `json:"classifier"`
}

// ErrNoModel is returned by LoadFile when no model has been trained yet.
var ErrNoModel = errors.New("no trained model")

// LoadFile reads a classifier and scaler pair from path. A missing file
// returns ErrNoModel.
func LoadFile(path string) (Classifier, Scaler, error) {
	if path == "" {
		return nil, nil, ErrNoModel
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNoModel
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading model file: %w", err)
	}
	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parsing model file: %w", err)
	}
	if f.Classifier == nil || len(f.Classifier.Weights) == 0 {
		return nil, nil, ErrNoModel
	}
	if f.Scaler == nil {
		return f.Classifier, nil, nil
	}
	return f.Classifier, f.Scaler, nil
}
