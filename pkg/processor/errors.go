package processor

import (
	"errors"

	"github.com/Mindburn-Labs/helm-bridge/pkg/claim"
	"github.com/Mindburn-Labs/helm-bridge/pkg/governance"
	"github.com/Mindburn-Labs/helm-bridge/pkg/upgrade"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

// ErrClaimAddressMismatch means the caller named a claim account other than
// the one derived from the message.
var ErrClaimAddressMismatch = errors.New("claim address does not match message")

// ErrorKind classifies processing failures for callers and metrics.
type ErrorKind string

const (
	KindNone                      ErrorKind = ""
	KindInvalidGovernanceAction   ErrorKind = "InvalidGovernanceAction"
	KindGovernanceForAnotherChain ErrorKind = "GovernanceForAnotherChain"
	KindImplementationMismatch    ErrorKind = "ImplementationMismatch"
	KindAlreadyExecuted           ErrorKind = "AlreadyExecuted"
	KindPrivilegedOperationFailed ErrorKind = "PrivilegedOperationFailed"
	KindUnauthenticated           ErrorKind = "Unauthenticated"
	KindInvalidArgument           ErrorKind = "InvalidArgument"
	KindInternal                  ErrorKind = "Internal"
)

// Kind returns the kind of err, KindNone for nil.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, governance.ErrInvalidGovernanceAction):
		return KindInvalidGovernanceAction
	case errors.Is(err, governance.ErrGovernanceForAnotherChain):
		return KindGovernanceForAnotherChain
	case errors.Is(err, governance.ErrImplementationMismatch):
		return KindImplementationMismatch
	case errors.Is(err, claim.ErrAlreadyExecuted):
		return KindAlreadyExecuted
	case errors.Is(err, upgrade.ErrPrivilegedOperationFailed):
		return KindPrivilegedOperationFailed
	case errors.Is(err, vaa.ErrMalformed),
		errors.Is(err, vaa.ErrUnsupportedVersion),
		errors.Is(err, vaa.ErrUnknownGuardianSet),
		errors.Is(err, vaa.ErrNoQuorum),
		errors.Is(err, vaa.ErrInvalidSignature),
		errors.Is(err, vaa.ErrInvalidGovernanceEmitter):
		return KindUnauthenticated
	case errors.Is(err, ErrClaimAddressMismatch):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(Kind(err))
}
