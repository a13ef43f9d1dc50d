package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"bizlens/backend/internal/platform/apierror"
)

// Schemas fixes the input features of the built-in models, in order.
var Schemas = map[string][]string{
	"churn_model": {
		"age", "tenure", "usage_frequency", "support_tickets",
		"last_purchase_days", "subscription_tier", "contract_length", "payment_delay",
	},
	"revenue_model": {
		"marketing_spend", "seasonality_index", "new_users", "active_users",
		"churn_rate", "avg_revenue_per_user", "economic_indicator",
	},
}

// RequiredFeatures is the fixed schema for built-in models and the artifact's features otherwise.
func RequiredFeatures(a *Artifact) []string {
	if s, ok := Schemas[a.Name]; ok {
		return s
	}
	return a.Features
}

// Vector validates features against the required schema and returns them in artifact order.
// Artifact features outside the schema default to 0.
func Vector(a *Artifact, features map[string]any) ([]float64, error) {
	var missing []string
	for _, f := range RequiredFeatures(a) {
		if _, ok := features[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, apierror.Invalid("Schema Validation Failed. Missing required features: [" + strings.Join(missing, ", ") + "]")
	}
	x := make([]float64, len(a.Features))
	for i, f := range a.Features {
		raw, ok := features[f]
		if !ok {
			continue
		}
		v, err := toFloat(raw)
		if err != nil {
			return nil, apierror.Invalid(fmt.Sprintf("feature %q must be numeric", f))
		}
		x[i] = v
	}
	return x, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
