package domain

import (
	"strings"
	"time"

	"bizlens/backend/internal/platform/apierror"
)

// Notification is an in-app message for a company, or for one user of it when UserID is set.
type Notification struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var (
	ErrNotFound        = apierror.NotFound("notification not found")
	ErrTitleRequired   = apierror.Invalid("notification title is required")
	ErrInvalidSeverity = apierror.Invalid("severity must be info, warning, or critical")
)

// ParseSeverity maps an empty value to info.
func ParseSeverity(s string) (Severity, error) {
	switch v := Severity(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return SeverityInfo, nil
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return v, nil
	default:
		return "", ErrInvalidSeverity
	}
}

// Validate validates the notification for persistence. Returns an error describing the first validation failure.
func (n *Notification) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return ErrTitleRequired
	}
	sev, err := ParseSeverity(string(n.Severity))
	if err != nil {
		return err
	}
	n.Severity = sev
	return nil
}
