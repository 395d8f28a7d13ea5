package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrApprovalRequired indicates an operation needs a manager/owner sign-off.
	ErrApprovalRequired = errors.New("approval required")
	// ErrBadApproverPIN indicates the supplied manager PIN did not verify.
	ErrBadApproverPIN = errors.New("approver pin invalid")
	// ErrUnknownReasonCode indicates an override reason outside the registry.
	ErrUnknownReasonCode = errors.New("reason code not recognised")
)
