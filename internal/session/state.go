// Package session owns the connection to the messaging platform: the
// lifecycle state machine, persisted credentials, pairing QR codes and the
// Slack Socket Mode connector.
package session

import (
	"context"
	"errors"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

var (
	// ErrLoggedOut means the platform rejected the credentials. The process
	// cannot recover without the operator pairing again.
	ErrLoggedOut = errors.New(config.ErrLoggedOut)

	// ErrRestartRequested asks the supervisor to start a fresh process.
	ErrRestartRequested = errors.New(config.ErrRestart)

	// ErrNoCredentials is returned by a Connector that has nothing to log in with.
	ErrNoCredentials = errors.New(config.ErrNoCredentials)
)

// State is the connection state of the messaging session.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	ClosedRecoverable
	ClosedLoggedOut
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case ClosedRecoverable:
		return "closed"
	case ClosedLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// EventKind discriminates Event payloads.
type EventKind int

const (
	EventState EventKind = iota
	EventQR
	EventCredentials
)

// Event is emitted by a Handle. Only the fields matching Kind are set.
type Event struct {
	Kind  EventKind
	State State
	// Reason is the platform's close reason, if any.
	Reason string
	Err    error
	// QR is the raw pairing challenge to encode for the operator.
	QR string
	// Credentials are files to persist in the credential store.
	Credentials map[string][]byte
}

// Group is a conversation the bot can post greetings to.
type Group struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Handle is one live connection attempt. Events is closed when the
// connection is gone for good.
type Handle interface {
	Events() <-chan Event
	SendText(ctx context.Context, groupID, text string) error
	ListGroups(ctx context.Context) ([]Group, error)
	Logout(ctx context.Context) error
	End() error
}

// Connector opens sessions. Errors wrapping ErrLoggedOut are terminal.
type Connector interface {
	Connect(ctx context.Context, creds *CredentialStore) (Handle, error)
}

// Status is the dashboard view of the session.
type Status struct {
	Connected         bool   `json:"connected"`
	AuthSessionExists bool   `json:"authSessionExists"`
	QR                string `json:"qr"`
	State             string `json:"state"`
}
