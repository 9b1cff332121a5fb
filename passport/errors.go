package passport

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Error() strings are human-readable and may evolve.
type Kind string

const (
	KindValidation    Kind = "Validation"
	KindAuthorization Kind = "Authorization"
	KindIntegrity     Kind = "Integrity"
	KindCollaborator  Kind = "Collaborator"
	KindNotFound      Kind = "NotFound"
	KindExhausted     Kind = "Exhausted"
	KindLedger        Kind = "Ledger"
	KindInternal      Kind = "Internal"
)

// Stable rule identifiers naming the violated invariant.
const (
	RuleMissingProductID    = "DPP-VAL-001"
	RuleMissingProductName  = "DPP-VAL-002"
	RuleBadGranularity      = "DPP-VAL-003"
	RuleMissingDiscriminant = "DPP-VAL-004"
	RuleMissingIssuer       = "DPP-VAL-005"
	RuleBadPublicKey        = "DPP-VAL-006"

	RuleIssuerUnknown       = "DPP-AUTH-001"
	RuleIssuerUnverified    = "DPP-AUTH-002"
	RuleAccountUnauthorized = "DPP-AUTH-003"
	RuleAccountMismatch     = "DPP-AUTH-004"

	RuleSessionGone  = "DPP-SES-001"
	RuleNoSignature  = "DPP-SES-002"
	RuleBadSignature = "DPP-SES-003"

	RuleTokenNotFound       = "DPP-NF-001"
	RuleVersionNotAvailable = "DPP-NF-002"

	RuleCorruptDataset = "DPP-ITG-001"

	RuleStatusListFull = "DPP-EXH-001"

	RuleLedgerRejected = "DPP-LED-001"

	RuleStorageFailed = "DPP-COL-001"

	RuleInternal = "DPP-INT-001"
)

// Error is the lifecycle's structured error type. RuleID names the violated
// rule; Message is for humans and must not be matched on.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable rule identifier, or "" if err is unstructured.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
