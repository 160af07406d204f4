package allowlist

import (
	"fmt"

	"github.com/dmitrijs2005/tradegate/internal/common"
)

// Kind classifies the outcome of an authorization attempt.
type Kind int

const (
	Authorized Kind = iota
	InactiveBlocked
	NotRegistered
	TransientError
	IncompleteIdentity
)

func (k Kind) String() string {
	switch k {
	case Authorized:
		return "authorized"
	case InactiveBlocked:
		return "inactive_blocked"
	case NotRegistered:
		return "not_registered"
	case TransientError:
		return "transient_error"
	case IncompleteIdentity:
		return "incomplete_identity"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DiagnosisKind explains a NotRegistered verdict.
type DiagnosisKind int

const (
	DiagnosisNone DiagnosisKind = iota
	// DiagnosisMissing: no record under any known field name.
	DiagnosisMissing
	// DiagnosisFieldMismatch: a record exists under a legacy field name.
	DiagnosisFieldMismatch
	// DiagnosisUnknown: the diagnostic lookups themselves failed.
	DiagnosisUnknown
)

type Diagnosis struct {
	Kind     DiagnosisKind
	Field    string
	RecordID string
}

// Verdict is the result of Authorize and AuthorizeExistingLogin. Record is set
// for Authorized and InactiveBlocked.
type Verdict struct {
	Kind      Kind
	Record    *Record
	Message   string
	Diagnosis Diagnosis
	Cause     error
}

const (
	msgAuthorized    = "Access granted."
	msgInactive      = "Your account has been deactivated. Please contact the administrator."
	msgNotRegistered = "No registration was found for this account. Please register first."
	msgFieldMismatch = "Your registration was found but is stored in an outdated format. Please contact the administrator."
	msgTransient     = "Could not reach the authorization service. Check your connection and try again."
	msgIncomplete    = "Could not complete registration automatically, returning to the page."
)

func authorized(r Record) Verdict {
	return Verdict{Kind: Authorized, Record: &r, Message: msgAuthorized}
}

func inactive(r Record) Verdict {
	return Verdict{Kind: InactiveBlocked, Record: &r, Message: msgInactive}
}

func transient(err error) Verdict {
	return Verdict{Kind: TransientError, Message: msgTransient, Cause: err}
}

func notRegistered(d Diagnosis) Verdict {
	msg := msgNotRegistered
	if d.Kind == DiagnosisFieldMismatch {
		msg = msgFieldMismatch
	}
	return Verdict{Kind: NotRegistered, Message: msg, Diagnosis: d}
}

// Err maps the verdict onto the common sentinels; Authorized yields nil.
func (v Verdict) Err() error {
	switch v.Kind {
	case Authorized:
		return nil
	case InactiveBlocked:
		return common.ErrInactiveBlocked
	case NotRegistered:
		return common.ErrNotRegistered
	case IncompleteIdentity:
		return common.ErrExtractionIncomplete
	case TransientError:
		if v.Cause != nil {
			return fmt.Errorf("%w: %v", common.ErrTransient, v.Cause)
		}
		return common.ErrTransient
	}
	return common.ErrorInternal
}
