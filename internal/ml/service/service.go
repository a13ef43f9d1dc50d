// Package service serves predictions and explanations from the model registry.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bizlens/backend/internal/ml/decision"
	"bizlens/backend/internal/ml/domain"
	"bizlens/backend/internal/ml/model"
	"bizlens/backend/internal/ml/registry"
	mlrepo "bizlens/backend/internal/ml/repository"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry"
	"bizlens/backend/internal/telemetry/metrics"
)

// TopFeatureCount is the number of features named in an explanation's top list.
const TopFeatureCount = 5

// MaxBatch caps the rows of one batch prediction.
const MaxBatch = 1000

var (
	ErrModelNameRequired = apierror.Invalid("model_name is required")
	ErrEmptyBatch        = apierror.Invalid("features_list must not be empty")
	ErrBatchTooLarge     = apierror.Invalid(fmt.Sprintf("features_list must have at most %d entries", MaxBatch))
)

// Result is one served prediction.
type Result struct {
	Prediction   float64 `json:"prediction"`
	Probability  float64 `json:"probability"`
	Confidence   float64 `json:"confidence"`
	ModelName    string  `json:"model_name"`
	ModelVersion string  `json:"model_version"`
	DecisionID   string  `json:"decision_id"`
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Name                 string `json:"name"`
	Type                 string `json:"type"`
	Loaded               bool   `json:"loaded"`
	NFeatures            int    `json:"n_features"`
	HasFeatureImportance bool   `json:"has_feature_importance"`
	Version              string `json:"version"`
}

// Explanation is the SHAP breakdown of one prediction.
type Explanation struct {
	ShapValues   []model.Contribution `json:"shap_values"`
	BaseValue    float64              `json:"base_value"`
	FeatureNames []string             `json:"feature_names"`
	TopFeatures  []string             `json:"top_features"`
	Prediction   float64              `json:"prediction"`
	ModelVersion string               `json:"model_version"`
	DecisionID   string               `json:"decision_id"`
}

type Service struct {
	registry  *registry.Registry
	decisions *decision.Logger
	repo      mlrepo.Repository
	metrics   *metrics.Metrics
	emitter   telemetry.EventEmitter
	lggr      logger.Logger
	now       func() time.Time
}

// NewService returns the ML service. decisions, m and emitter may be nil.
func NewService(reg *registry.Registry, decisions *decision.Logger, repo mlrepo.Repository, m *metrics.Metrics, emitter telemetry.EventEmitter, lggr logger.Logger) *Service {
	if emitter == nil {
		emitter = telemetry.Noop{}
	}
	return &Service{
		registry:  reg,
		decisions: decisions,
		repo:      repo,
		metrics:   m,
		emitter:   emitter,
		lggr:      lggr.Named("ml"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) load(name string) (*registry.Loaded, error) {
	if name == "" {
		return nil, ErrModelNameRequired
	}
	return s.registry.Load(name)
}

// Predict scores one feature set and records the decision.
func (s *Service) Predict(_ context.Context, modelName string, features map[string]any) (*Result, error) {
	m, err := s.load(modelName)
	if err != nil {
		return nil, err
	}
	x, err := model.Vector(m.Artifact, features)
	if err != nil {
		return nil, err
	}
	return s.serve(m, features, x, nil), nil
}

func (s *Service) serve(m *registry.Loaded, features map[string]any, x []float64, shap map[string]float64) *Result {
	r := m.Predict(x)
	res := &Result{
		Prediction:   r.Prediction,
		Probability:  r.Probability,
		Confidence:   r.Confidence,
		ModelName:    m.Name,
		ModelVersion: m.Version,
		DecisionID:   uuid.NewString(),
	}
	prob := r.Probability
	s.decisions.LogAsync(&decision.Record{
		ID:           res.DecisionID,
		ModelName:    m.Name,
		ModelVersion: m.Version,
		Features:     features,
		Prediction:   r.Prediction,
		Probability:  &prob,
		ShapValues:   shap,
		Metadata:     map[string]any{"confidence": r.Confidence, "kind": string(m.Kind)},
		CreatedAt:    s.now(),
	})
	s.metrics.Prediction(m.Name)
	return res
}

// BatchPredict validates every entry before scoring any of them.
func (s *Service) BatchPredict(_ context.Context, modelName string, list []map[string]any) ([]*Result, error) {
	if len(list) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(list) > MaxBatch {
		return nil, ErrBatchTooLarge
	}
	m, err := s.load(modelName)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float64, len(list))
	for i, features := range list {
		if vectors[i], err = model.Vector(m.Artifact, features); err != nil {
			_, msg := apierror.Status(err)
			return nil, apierror.Invalid(fmt.Sprintf("features_list[%d]: %s", i, msg))
		}
	}
	out := make([]*Result, len(list))
	for i, x := range vectors {
		out[i] = s.serve(m, list[i], x, nil)
	}
	return out, nil
}

// Models lists the artifacts in the model directory.
func (s *Service) Models() ([]registry.Info, error) {
	return s.registry.List()
}

// Info loads the model and describes it.
func (s *Service) Info(name string) (*ModelInfo, error) {
	m, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return &ModelInfo{
		Name:                 m.Name,
		Type:                 m.TypeName(),
		Loaded:               true,
		NFeatures:            len(m.Features),
		HasFeatureImportance: len(m.Weights) > 0,
		Version:              m.Version,
	}, nil
}

// Explain returns the exact SHAP values of a prediction. featureNames, when given, limits the
// reported values to those features.
func (s *Service) Explain(_ context.Context, modelName string, features map[string]any, featureNames []string) (*Explanation, error) {
	m, err := s.load(modelName)
	if err != nil {
		return nil, err
	}
	x, err := model.Vector(m.Artifact, features)
	if err != nil {
		return nil, err
	}
	full := m.Explain(x)
	res := s.serve(m, features, x, full.Map())

	shown := full.Filter(featureNames)
	names := featureNames
	if len(names) == 0 {
		names = m.Features
	}
	return &Explanation{
		ShapValues:   shown.Values,
		BaseValue:    shown.BaseValue,
		FeatureNames: names,
		TopFeatures:  shown.TopFeatures(TopFeatureCount),
		Prediction:   res.Prediction,
		ModelVersion: res.ModelVersion,
		DecisionID:   res.DecisionID,
	}, nil
}

// PredictForCompany runs a prediction and stores it in the company's history.
func (s *Service) PredictForCompany(ctx context.Context, companyID, userID, modelName string, features map[string]any) (*domain.Prediction, error) {
	res, err := s.Predict(ctx, modelName, features)
	if err != nil {
		return nil, err
	}
	p := &domain.Prediction{
		ID:           res.DecisionID,
		CompanyID:    companyID,
		ModelName:    res.ModelName,
		ModelVersion: res.ModelVersion,
		Features:     features,
		Prediction:   res.Prediction,
		Probability:  res.Probability,
		Confidence:   res.Confidence,
		CreatedBy:    userID,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("store prediction: %w", err)
	}
	telemetry.EmitAsync(s.lggr, s.emitter, telemetry.NewEvent("prediction_created", "ml", companyID, userID, map[string]any{
		"model":      p.ModelName,
		"version":    p.ModelVersion,
		"prediction": p.Prediction,
	}))
	return p, nil
}

func (s *Service) ListPredictions(ctx context.Context, companyID, modelName string, limit, offset int32) ([]*domain.Prediction, error) {
	return s.repo.List(ctx, companyID, modelName, limit, offset)
}
