package types

import "fmt"

// Decision is the outcome of evaluating a presented credential.
type Decision uint8

const (
	DecisionInvalid Decision = iota
	DecisionDeny
	DecisionGrant
	DecisionPendingNew
	DecisionPendingRepeat
)

func (d Decision) String() string {
	switch d {
	case DecisionInvalid:
		return "INVALID"
	case DecisionDeny:
		return "DENY"
	case DecisionGrant:
		return "GRANT"
	case DecisionPendingNew:
		return "PENDING_NEW"
	case DecisionPendingRepeat:
		return "PENDING_REPEAT"
	default:
		return fmt.Sprintf("DECISION(%d)", uint8(d))
	}
}

// Event converts a decision for uid into the event published on the bus.
func (d Decision) Event(uid string) Event {
	switch d {
	case DecisionGrant:
		return CredentialGranted{UID: uid}
	case DecisionDeny:
		return CredentialDenied{UID: uid}
	case DecisionPendingNew:
		return CredentialPending{UID: uid, FirstSighting: true}
	case DecisionPendingRepeat:
		return CredentialPending{UID: uid}
	default:
		return CredentialInvalid{UID: uid}
	}
}

// LogKind returns the access log kind recorded for the decision.
func (d Decision) LogKind() LogKind {
	switch d {
	case DecisionGrant:
		return LogRFIDGranted
	case DecisionDeny:
		return LogRFIDDenied
	case DecisionPendingNew, DecisionPendingRepeat:
		return LogRFIDPending
	default:
		return LogRFIDInvalid
	}
}
