// Package syncerrors defines the error taxonomy shared by the sync core.
//
// Failures scoped to one conversation or listing are accumulated into the
// pass report and never abort sibling work. ErrSessionExpired is the one
// class that short-circuits the rest of a host's pass, since every later
// automated call would fail the same way.
package syncerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired indicates the automated session was rejected by the
	// remote platform (login redirect). Callers should request a fresh
	// session rather than retry.
	ErrSessionExpired = errors.New("session expired")

	// ErrTransportUnavailable indicates a delivery channel is disabled or
	// not configured for the host.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrNoDeliveryChannel indicates no channel at all could accept an
	// outbound message. Terminal per-message: the inbound stays persisted,
	// no outbound is recorded.
	ErrNoDeliveryChannel = errors.New("no delivery channel configured")

	// ErrStoreWriteConflict is modeled for completeness; the idempotent
	// store paths should never surface it.
	ErrStoreWriteConflict = errors.New("store write conflict")
)

// FetchError is a typed failure from a remote thread or listing fetch.
// The orchestrator treats it as "zero messages this pass" for the thread.
type FetchError struct {
	Transport  string
	StatusCode int
	Detail     string
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote fetch failed (%s, status %d): %s", e.Transport, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("remote fetch failed (%s): %s", e.Transport, e.Detail)
}

// SendStage identifies which stage of the UI send primitive failed.
type SendStage string

const (
	StageNavigate    SendStage = "navigate"
	StageLocateInput SendStage = "locate_input"
	StageSetContent  SendStage = "set_content"
	StageLocateSend  SendStage = "locate_send"
	StageCommitSend  SendStage = "commit_send"
	StageVerify      SendStage = "verify"
	StageAPI         SendStage = "api"
)

// SendError is a typed failure from an outbound delivery attempt. Page
// diagnostics stay in the fields for operators; callers only branch on the
// error kind.
type SendError struct {
	Stage     SendStage
	Location  string
	PageTitle string
	Err       error
}

func (e *SendError) Error() string {
	msg := fmt.Sprintf("remote send failed at stage %s", e.Stage)
	if e.Location != "" {
		msg += fmt.Sprintf(" (at %s)", e.Location)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SendError) Unwrap() error { return e.Err }

// IsSessionExpired reports whether err is, or wraps, a session expiry.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
