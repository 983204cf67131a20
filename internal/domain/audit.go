package domain

import (
	"encoding/json"
	"time"
)

// AuditAction names a recorded mutation.
type AuditAction string

// Audit actions.
const (
	AuditSubscriberCreated  AuditAction = "subscriber.created"
	AuditSubscriberUpdated  AuditAction = "subscriber.updated"
	AuditSubscriberDeleted  AuditAction = "subscriber.deleted"
	AuditPaymentRecorded    AuditAction = "payment.recorded"
	AuditMessageSent        AuditAction = "message.sent"
	AuditStatusTransitioned AuditAction = "lifecycle.transitioned"
	AuditStaffCreated       AuditAction = "staff.created"
	AuditStaffUpdated       AuditAction = "staff.updated"
	AuditStaffDeleted       AuditAction = "staff.deleted"
)

// AuditLog is an append-only record of a staff action.
type AuditLog struct {
	ID           string          `json:"id"`
	StaffID      string          `json:"staff_id"`
	SubscriberID *string         `json:"subscriber_id"`
	Action       AuditAction     `json:"action"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}
