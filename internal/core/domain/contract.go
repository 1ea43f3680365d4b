package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidUpdate is returned when a status update would break the contract invariants.
var ErrInvalidUpdate = errors.New("invalid contract update")

// Contract represents a smart contract whose source is checked for token compliance
type Contract struct {
	ID                int64
	Address           string
	SourceCode        string
	IsCompliant       *bool
	ComplianceVersion *string // reserved, never written by the pipeline
	Status            ContractStatus
	UpdatedAt         time.Time
}

type ContractStatus string

const (
	ContractStatusPendingAnalysis ContractStatus = "PENDING_ANALYSIS"
	ContractStatusInFlight        ContractStatus = "IN_FLIGHT"
	ContractStatusProcessed       ContractStatus = "PROCESSED"
	ContractStatusFailed          ContractStatus = "FAILED"
)

// AllContractStatuses lists every status in lifecycle order.
var AllContractStatuses = []ContractStatus{
	ContractStatusPendingAnalysis,
	ContractStatusInFlight,
	ContractStatusProcessed,
	ContractStatusFailed,
}

// Valid reports whether s is a known status.
func (s ContractStatus) Valid() bool {
	for _, known := range AllContractStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// EligibleStatuses are picked up by the producer on every sweep.
// InFlight rows are eligible too once they are older than the configured in-flight
// timeout: a batch that was published but never classified is simply published again.
var EligibleStatuses = []ContractStatus{
	ContractStatusPendingAnalysis,
	ContractStatusFailed,
}

// IsEligible reports whether a contract with the given status and last update time
// should be (re)published at now.
func IsEligible(status ContractStatus, updatedAt, now time.Time, inFlightTimeout time.Duration) bool {
	switch status {
	case ContractStatusPendingAnalysis, ContractStatusFailed:
		return true
	case ContractStatusInFlight:
		return !updatedAt.After(now.Add(-inFlightTimeout))
	default:
		return false
	}
}

// ContractToAnalyze is the unit carried on the queue.
type ContractToAnalyze struct {
	ID         int64  `json:"id"`
	SourceCode string `json:"source_code"`
}

// ContractUpdate is the set of columns written by a bulk update.
type ContractUpdate struct {
	Status      ContractStatus
	IsCompliant *bool

	// From restricts the update to rows currently in one of these statuses.
	// Empty means any status.
	From []ContractStatus
}

// InFlightUpdate marks contracts as published and awaiting classification. Rows
// that were already classified keep their verdict.
func InFlightUpdate() ContractUpdate {
	return ContractUpdate{
		Status: ContractStatusInFlight,
		From: []ContractStatus{
			ContractStatusPendingAnalysis,
			ContractStatusFailed,
			ContractStatusInFlight,
		},
	}
}

// AppliesTo reports whether a row in status current is changed by u.
func (u ContractUpdate) AppliesTo(current ContractStatus) bool {
	if len(u.From) == 0 {
		return true
	}
	for _, s := range u.From {
		if s == current {
			return true
		}
	}
	return false
}

// ProcessedUpdate records a compliance verdict.
func ProcessedUpdate(compliant bool) ContractUpdate {
	return ContractUpdate{Status: ContractStatusProcessed, IsCompliant: &compliant}
}

// Validate enforces Processed => IsCompliant != nil.
func (u ContractUpdate) Validate() error {
	if !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, u.Status)
	}
	if u.Status == ContractStatusProcessed && u.IsCompliant == nil {
		return fmt.Errorf("%w: processed contract requires a verdict", ErrInvalidUpdate)
	}
	for _, s := range u.From {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, s)
		}
	}
	return nil
}
