package models

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned by repositories when no order matches
	ErrOrderNotFound = errors.New("order not found")
	// ErrLockNotAcquired is returned when an order lock is held elsewhere
	ErrLockNotAcquired = errors.New("order lock not acquired")
)

// ConfigurationError reports gateway configuration that cannot produce a payload
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ValidationError reports an order that cannot be turned into a payload
type ValidationError struct {
	OrderID int64
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for order %d: %s", e.OrderID, e.Reason)
}

// ProviderError reports a failed call against the payment provider API.
// Payload holds the raw response body, if one was received.
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
	Payload    []byte
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s failed: %s", e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AnomalyKind classifies reconciliation anomalies
type AnomalyKind string

// Anomaly kinds
const (
	AnomalyRemoteIDMismatch AnomalyKind = "remote_id_mismatch"
	AnomalyMissingRemoteID  AnomalyKind = "missing_remote_id"
	AnomalyOrderNotFound    AnomalyKind = "order_not_found"
	AnomalyPaymentNotFound  AnomalyKind = "payment_not_found"
	AnomalyPaymentAmbiguous AnomalyKind = "payment_ambiguous"
	AnomalyUnexpectedStatus AnomalyKind = "unexpected_status"
)

// Anomaly is a diagnostic reconciliation signal. It is logged and published,
// never returned to the external caller.
type Anomaly struct {
	Kind     AnomalyKind
	OrderID  int64
	RemoteID string
	Detail   string
}

func (a *Anomaly) Error() string {
	return fmt.Sprintf("reconciliation anomaly %s for order %d: %s", a.Kind, a.OrderID, a.Detail)
}

// IsProviderError reports whether err wraps a ProviderError
func IsProviderError(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr)
}
