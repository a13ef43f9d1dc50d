package domain

import "time"

// AuditLog represents an audit event scoped to a company.
type AuditLog struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows an audit log listing. Empty fields do not filter.
type Filter struct {
	UserID   string
	Action   string
	Resource string
	Limit    int32
	Offset   int32
}
