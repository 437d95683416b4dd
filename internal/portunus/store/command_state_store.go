package store

import "context"

// CommandStateStore remembers the last processed command so that a replayed
// command is not applied twice.
type CommandStateStore interface {
	LastCommandID(ctx context.Context) (string, error)
	SetLastCommandID(ctx context.Context, id string) error
}
