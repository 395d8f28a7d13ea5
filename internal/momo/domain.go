package momo

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the collection lifecycle. PENDING is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
	StatusTimeout   Status = "TIMEOUT"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusTimeout
}

// Collection is one mobile-money collection request. The idempotency key is
// unique per business; the invoice link is set at most once and only while
// CONFIRMED.
type Collection struct {
	ID                    int64
	BusinessID            int64
	IdempotencyKey        string
	Msisdn                string
	Network               string
	AmountPence           int64
	CurrencyCode          string
	Status                Status
	ProviderStatus        string
	ProviderRequestID     string
	ProviderTransactionID string
	FailureReason         string
	InvoiceID             int64 // 0 until attached
	RequestedBy           int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StatusLog is one append-only row per state transition, written in the same
// transaction as the transition itself.
type StatusLog struct {
	ID             int64
	CollectionID   int64
	Status         Status
	ProviderStatus string
	RawPayload     json.RawMessage
	CreatedAt      time.Time
}

// InitiateInput starts a collection.
type InitiateInput struct {
	BusinessID     int64
	IdempotencyKey string
	Msisdn         string
	Network        string
	AmountPence    int64
	CurrencyCode   string
	RequestedBy    int64
}

// Result is the provider's view of a collection, normalised to the local
// state machine.
type Result struct {
	Status                Status
	ProviderStatus        string
	ProviderRequestID     string
	ProviderTransactionID string
	FailureReason         string
	Raw                   json.RawMessage
}

var (
	// ErrCollectionNotFound indicates an unknown collection.
	ErrCollectionNotFound = errors.New("momo: collection not found")
	// ErrCollectionNotUsable indicates an attach attempt on a collection that
	// is not CONFIRMED, is already attached, or whose amount mismatches.
	ErrCollectionNotUsable = errors.New("momo: collection not usable for payment")
	// ErrConfirmAfterFailure indicates a provider trying to confirm a
	// collection already recorded as FAILED or TIMEOUT.
	ErrConfirmAfterFailure = errors.New("momo: cannot confirm a failed collection")
	// ErrInvalidAmount indicates a non-positive collection amount.
	ErrInvalidAmount = errors.New("momo: amount must be positive")
	// ErrBadSignature indicates a webhook whose HMAC did not verify.
	ErrBadSignature = errors.New("momo: webhook signature mismatch")
	// ErrDuplicateDelivery indicates a webhook delivery id seen before.
	ErrDuplicateDelivery = errors.New("momo: duplicate webhook delivery")
)
