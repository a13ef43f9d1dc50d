package domain

import "time"

// Prediction is a prediction stored for a company.
type Prediction struct {
	ID           string         `json:"id"`
	CompanyID    string         `json:"company_id"`
	ModelName    string         `json:"model_name"`
	ModelVersion string         `json:"model_version"`
	Features     map[string]any `json:"features"`
	Prediction   float64        `json:"prediction"`
	Probability  float64        `json:"probability"`
	Confidence   float64        `json:"confidence"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
