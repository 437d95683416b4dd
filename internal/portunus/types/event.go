package types

// EventKind tags the closed set of events carried on the bus.
type EventKind uint8

const (
	KindCredentialGranted EventKind = iota + 1
	KindCredentialDenied
	KindCredentialPending
	KindCredentialInvalid
	KindExitTriggered
	KindRemoteUnlock
)

func (k EventKind) String() string {
	switch k {
	case KindCredentialGranted:
		return "CREDENTIAL_GRANTED"
	case KindCredentialDenied:
		return "CREDENTIAL_DENIED"
	case KindCredentialPending:
		return "CREDENTIAL_PENDING"
	case KindCredentialInvalid:
		return "CREDENTIAL_INVALID"
	case KindExitTriggered:
		return "EXIT_TRIGGERED"
	case KindRemoteUnlock:
		return "REMOTE_UNLOCK"
	default:
		return "UNKNOWN"
	}
}

// Event is implemented only by the variants in this file. Events are plain
// values and are never mutated after they are published.
type Event interface {
	Kind() EventKind
	isEvent()
}

type CredentialGranted struct{ UID string }

type CredentialDenied struct{ UID string }

// CredentialPending is published for both first and repeat sightings.
type CredentialPending struct {
	UID           string
	FirstSighting bool
}

// CredentialInvalid carries the raw UID when one could be read.
type CredentialInvalid struct{ UID string }

type ExitTriggered struct{}

// RemoteUnlock is injected by the command layer. Source names the transport.
type RemoteUnlock struct{ Source string }

func (CredentialGranted) Kind() EventKind { return KindCredentialGranted }
func (CredentialDenied) Kind() EventKind  { return KindCredentialDenied }
func (CredentialPending) Kind() EventKind { return KindCredentialPending }
func (CredentialInvalid) Kind() EventKind { return KindCredentialInvalid }
func (ExitTriggered) Kind() EventKind     { return KindExitTriggered }
func (RemoteUnlock) Kind() EventKind      { return KindRemoteUnlock }

func (CredentialGranted) isEvent() {}
func (CredentialDenied) isEvent()  {}
func (CredentialPending) isEvent() {}
func (CredentialInvalid) isEvent() {}
func (ExitTriggered) isEvent()     {}
func (RemoteUnlock) isEvent()      {}

// EventUID returns the credential UID carried by e, or "" for events that
// carry none.
func EventUID(e Event) string {
	switch ev := e.(type) {
	case CredentialGranted:
		return ev.UID
	case CredentialDenied:
		return ev.UID
	case CredentialPending:
		return ev.UID
	case CredentialInvalid:
		return ev.UID
	default:
		return ""
	}
}
