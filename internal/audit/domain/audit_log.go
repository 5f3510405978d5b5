package domain

import "time"

// AuditLog represents a security event (registration, login, token replay, ...).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
