package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
)

// Lifecycle drives one messaging session at a time through
// Disconnected -> Connecting -> Open -> Closed*, reconnecting after a drop
// only once the session has been open at least once in this process.
type Lifecycle struct {
	Connector   Connector
	Credentials *CredentialStore
	Clock       clockwork.Clock

	// ReconnectDelay is the pause before retrying a dropped session.
	ReconnectDelay time.Duration
	// Supervised processes exit on disconnect and let the platform restart them.
	Supervised bool

	// OnOpen runs in its own goroutine after every transition to Open.
	OnOpen func(ctx context.Context)
	// Terminate is called when the process must stop: ErrLoggedOut or
	// ErrRestartRequested.
	Terminate func(err error)

	mu               sync.Mutex
	ctx              context.Context
	state            State
	handle           Handle
	generation       uint64
	hasEverConnected bool
	qr               *Challenge
	lastErr          error
	retry            clockwork.Timer
	changed          chan struct{}
}

// Start makes the first connection attempt and returns once the connector
// has answered. Events are processed in the background until ctx ends.
func (l *Lifecycle) Start(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	if l.Clock == nil {
		l.Clock = clockwork.NewRealClock()
	}
	if l.ReconnectDelay <= 0 {
		l.ReconnectDelay = config.DefaultReconnectDelay
	}
	l.mu.Unlock()
	l.connect()
}

// State returns the current connection state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// HasEverConnected reports whether a session reached Open in this process.
func (l *Lifecycle) HasEverConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasEverConnected
}

// Status returns the dashboard view of the session.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{
		Connected: l.state == Open,
		State:     l.state.String(),
	}
	if l.qr != nil {
		st.QR = l.qr.DataURL
	}
	if l.Credentials != nil {
		st.AuthSessionExists = l.Credentials.Exists()
	}
	return st
}

// Messenger returns the open session for the dispatcher.
func (l *Lifecycle) Messenger() (engine.Messenger, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Open || l.handle == nil {
		return nil, false
	}
	return l.handle, true
}

// ListGroups lists the groups visible to the open session.
func (l *Lifecycle) ListGroups(ctx context.Context) ([]Group, error) {
	l.mu.Lock()
	h := l.handle
	open := l.state == Open
	l.mu.Unlock()
	if !open || h == nil {
		return nil, engine.ErrNotConnected
	}
	groups, err := h.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrListGroups, err)
	}
	slog.InfoContext(ctx, config.MsgGroupsFetched,
		config.LogKeyComponent, config.CompSession,
		config.LogKeyCount, len(groups),
	)
	return groups, nil
}

// WaitOpen blocks until the session is open. It fails fast when the session
// is logged out or idle after a failed first attempt.
func (l *Lifecycle) WaitOpen(ctx context.Context) error {
	for {
		l.mu.Lock()
		state, ever, lastErr := l.state, l.hasEverConnected, l.lastErr
		ch := l.changedLocked()
		l.mu.Unlock()

		switch {
		case state == Open:
			return nil
		case state == ClosedLoggedOut:
			return ErrLoggedOut
		case state == ClosedRecoverable && !ever:
			if lastErr == nil {
				lastErr = errors.New(config.ErrConnect)
			}
			return lastErr
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", config.ErrConnectTimeout, ctx.Err())
		case <-ch:
		}
	}
}

// Reconnect retries immediately when no session is active.
func (l *Lifecycle) Reconnect() {
	l.mu.Lock()
	idle := l.state == Disconnected || l.state == ClosedRecoverable
	l.mu.Unlock()
	if idle {
		l.connect()
	}
}

// Disconnect logs out, deletes the stored credentials and resets the
// lifecycle. Supervised processes then terminate; others pair afresh.
func (l *Lifecycle) Disconnect(ctx context.Context) {
	slog.InfoContext(ctx, config.MsgDisconnectStart, config.LogKeyComponent, config.CompSession)

	h := l.detach()
	if h != nil {
		if err := h.Logout(ctx); err != nil {
			slog.WarnContext(ctx, config.MsgLogoutFailed,
				config.LogKeyComponent, config.CompSession,
				config.LogKeyError, err,
			)
		}
		_ = h.End()
	}
	if l.Credentials != nil {
		// Purge logs each file it could not remove.
		_ = l.Credentials.Purge()
	}

	l.mu.Lock()
	l.hasEverConnected = false
	l.lastErr = nil
	l.setStateLocked(Disconnected)
	l.mu.Unlock()
	slog.InfoContext(ctx, config.MsgDisconnectDone, config.LogKeyComponent, config.CompSession)

	l.restartAfter(config.LocalReconnectDelay)
}

// Restart drops the current connection but keeps the credentials.
func (l *Lifecycle) Restart(ctx context.Context) {
	slog.InfoContext(ctx, config.MsgSessionShutdown, config.LogKeyComponent, config.CompSession)
	if h := l.detach(); h != nil {
		_ = h.End()
	}
	l.mu.Lock()
	l.setStateLocked(Disconnected)
	l.mu.Unlock()
	l.restartAfter(config.LocalReconnectDelay)
}

// Shutdown ends the session without touching credentials and stops any
// pending reconnect.
func (l *Lifecycle) Shutdown() {
	slog.Info(config.MsgSessionShutdown, config.LogKeyComponent, config.CompSession)
	if h := l.detach(); h != nil {
		_ = h.End()
	}
	l.mu.Lock()
	l.setStateLocked(Disconnected)
	l.mu.Unlock()
}

// detach invalidates the current handle so its late events are ignored.
func (l *Lifecycle) detach() Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.stopRetryLocked()
	h := l.handle
	l.handle = nil
	l.qr = nil
	return h
}

func (l *Lifecycle) restartAfter(localDelay time.Duration) {
	if l.Supervised {
		slog.Info(config.MsgRestartExit,
			config.LogKeyComponent, config.CompSession,
			config.LogKeyDelay, config.RestartExitDelay.String(),
		)
		l.Clock.AfterFunc(config.RestartExitDelay, func() { l.terminate(ErrRestartRequested) })
		return
	}
	slog.Info(config.MsgRestartLocal,
		config.LogKeyComponent, config.CompSession,
		config.LogKeyDelay, localDelay.String(),
	)
	l.schedule(localDelay)
}

func (l *Lifecycle) connect() {
	l.mu.Lock()
	if l.ctx == nil || l.ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.generation++
	gen := l.generation
	ctx := l.ctx
	l.stopRetryLocked()
	l.setStateLocked(Connecting)
	l.mu.Unlock()

	slog.Info(config.MsgSessionConnect, config.LogKeyComponent, config.CompSession)

	h, err := l.Connector.Connect(ctx, l.Credentials)
	if err != nil {
		state := ClosedRecoverable
		if errors.Is(err, ErrLoggedOut) {
			state = ClosedLoggedOut
		}
		l.handleEvent(gen, Event{Kind: EventState, State: state, Err: err})
		return
	}

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		_ = h.End()
		return
	}
	l.handle = h
	l.mu.Unlock()

	go l.pump(gen, h)
}

func (l *Lifecycle) pump(gen uint64, h Handle) {
	for ev := range h.Events() {
		l.handleEvent(gen, ev)
	}
}

func (l *Lifecycle) handleEvent(gen uint64, ev Event) {
	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		slog.Debug(config.MsgSessionStale, config.LogKeyComponent, config.CompSession)
		return
	}

	switch ev.Kind {
	case EventCredentials:
		l.mu.Unlock()
		if err := l.Credentials.Save(ev.Credentials); err != nil {
			slog.Error(config.ErrCredentialsSave,
				config.LogKeyComponent, config.CompSession,
				config.LogKeyError, err,
			)
			return
		}
		slog.Debug(config.MsgSessionCreds, config.LogKeyComponent, config.CompSession)
		return

	case EventQR:
		if l.state == Open {
			l.mu.Unlock()
			return
		}
		now := l.Clock.Now()
		l.mu.Unlock()
		challenge, err := RenderQR(ev.QR, now)
		if err != nil {
			slog.Error(config.ErrQRRender, config.LogKeyComponent, config.CompSession, config.LogKeyError, err)
			return
		}
		l.mu.Lock()
		if gen == l.generation && l.state != Open {
			l.qr = challenge
			l.setStateLocked(Connecting)
		}
		l.mu.Unlock()
		slog.Info(config.MsgSessionQR, config.LogKeyComponent, config.CompSession)
		return
	}

	log := slog.With(
		config.LogKeyComponent, config.CompSession,
		config.LogKeyState, ev.State.String(),
	)

	switch ev.State {
	case Connecting:
		l.setStateLocked(Connecting)
		l.mu.Unlock()

	case Open:
		l.qr = nil
		l.hasEverConnected = true
		l.lastErr = nil
		l.setStateLocked(Open)
		ctx, onOpen := l.ctx, l.OnOpen
		l.mu.Unlock()
		log.Info(config.MsgSessionOpen)
		if onOpen != nil {
			go onOpen(ctx)
		}

	case ClosedLoggedOut:
		l.handle = nil
		l.lastErr = ev.Err
		l.setStateLocked(ClosedLoggedOut)
		l.mu.Unlock()
		log.Error(config.MsgSessionLogout, config.LogKeyReason, ev.Reason, config.LogKeyError, ev.Err)
		l.terminate(ErrLoggedOut)

	default:
		l.handle = nil
		l.lastErr = ev.Err
		l.setStateLocked(ClosedRecoverable)
		ever := l.hasEverConnected
		l.mu.Unlock()
		log.Warn(config.MsgSessionClosed, config.LogKeyReason, ev.Reason, config.LogKeyError, ev.Err)
		if !ever {
			log.Info(config.MsgSessionIdle)
			return
		}
		log.Info(config.MsgSessionRetry, config.LogKeyDelay, l.ReconnectDelay.String())
		l.schedule(l.ReconnectDelay)
	}
}

// schedule arranges one connect attempt after d. It is cancelled by any
// later detach.
func (l *Lifecycle) schedule(d time.Duration) {
	l.mu.Lock()
	gen := l.generation
	l.stopRetryLocked()
	l.mu.Unlock()

	t := l.Clock.AfterFunc(d, func() {
		l.mu.Lock()
		current := gen == l.generation
		l.mu.Unlock()
		if current {
			l.connect()
		}
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		t.Stop()
		return
	}
	l.retry = t
}

func (l *Lifecycle) stopRetryLocked() {
	if l.retry != nil {
		l.retry.Stop()
		l.retry = nil
	}
}

func (l *Lifecycle) terminate(err error) {
	if l.Terminate != nil {
		l.Terminate(err)
	}
}

func (l *Lifecycle) setStateLocked(s State) {
	l.state = s
	if l.changed != nil {
		close(l.changed)
		l.changed = nil
	}
}

func (l *Lifecycle) changedLocked() chan struct{} {
	if l.changed == nil {
		l.changed = make(chan struct{})
	}
	return l.changed
}
