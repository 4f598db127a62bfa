package session

import (
	"context"
	"encoding/json"
)

// Hooks is the extension point for app-specific session behavior: restoring
// and capturing extra persisted data, identity-specific initialisation (for
// example ensuring on-chain registration exists) and login/logout side
// effects. The core session handles key material and persistence; everything
// app-specific lives behind this interface.
type Hooks interface {
	// RestoreState receives the app-specific portion of the persisted record
	// at load time. Raw may be nil or malformed; implementations must treat
	// that as empty state, not a fatal error.
	RestoreState(raw json.RawMessage)

	// CaptureState returns the app-specific data to include in the next
	// saved record, or nil.
	CaptureState() json.RawMessage

	// Initialise performs identity-specific setup before data is published.
	Initialise(ctx context.Context) error

	// AfterLogin runs once new key material has been derived, before it is
	// persisted.
	AfterLogin(ctx context.Context) error

	// AfterLogout runs when the session's key material is cleared.
	AfterLogout()
}

// NoopHooks is the minimal extension: no extra data, no setup.
type NoopHooks struct{}

func (NoopHooks) RestoreState(json.RawMessage) {}
func (NoopHooks) CaptureState() json.RawMessage { return nil }
func (NoopHooks) Initialise(context.Context) error { return nil }
func (NoopHooks) AfterLogin(context.Context) error { return nil }
func (NoopHooks) AfterLogout() {}
