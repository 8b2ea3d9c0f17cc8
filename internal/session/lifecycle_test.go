package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeHandle struct {
	events chan Event

	mu        sync.Mutex
	sent      []string
	loggedOut bool
	ended     bool
	logoutErr error
	groups    []Group
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan Event, 8)}
}

func (h *fakeHandle) Events() <-chan Event { return h.events }

func (h *fakeHandle) SendText(_ context.Context, groupID, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, groupID+": "+text)
	return nil
}

func (h *fakeHandle) ListGroups(context.Context) ([]Group, error) {
	return h.groups, nil
}

func (h *fakeHandle) Logout(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loggedOut = true
	return h.logoutErr
}

func (h *fakeHandle) End() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = true
	return nil
}

func (h *fakeHandle) isEnded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ended
}

type fakeConnector struct {
	mu      sync.Mutex
	errs    []error
	handles []*fakeHandle
	calls   int
}

func (c *fakeConnector) Connect(context.Context, *CredentialStore) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	h := newFakeHandle()
	c.handles = append(c.handles, h)
	return h, nil
}

func (c *fakeConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeConnector) last() *fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[len(c.handles)-1]
}

type harness struct {
	lc         *Lifecycle
	conn       *fakeConnector
	clk        *clockwork.FakeClock
	opened     chan struct{}
	terminated chan error
	authDir    string
}

func newHarness(t *testing.T, supervised bool, errs ...error) *harness {
	t.Helper()
	h := &harness{
		conn:       &fakeConnector{errs: errs},
		clk:        clockwork.NewFakeClockAt(time.Date(2025, 5, 10, 1, 0, 0, 0, time.UTC)),
		opened:     make(chan struct{}, 4),
		terminated: make(chan error, 4),
		authDir:    filepath.Join(t.TempDir(), config.DefaultAuthDir),
	}
	h.lc = &Lifecycle{
		Connector:      h.conn,
		Credentials:    NewCredentialStore(h.authDir),
		Clock:          h.clk,
		ReconnectDelay: 5 * time.Second,
		Supervised:     supervised,
		OnOpen:         func(context.Context) { h.opened <- struct{}{} },
		Terminate:      func(err error) { h.terminated <- err },
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.lc.Start(ctx)
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.lc.State() == want }, time.Second, 5*time.Millisecond,
		"state never became %s", want)
}

// waitTimers blocks until at least n timers are pending on the fake clock.
func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clk.BlockUntilContext(ctx, n), "expected %d pending timers", n)
}

// noTimers asserts that fewer than n timers are pending.
func (h *harness) noTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.clk.BlockUntilContext(ctx, n), context.DeadlineExceeded, "fewer than %d pending timers expected", n)
}

func (h *harness) waitCalls(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.conn.Calls() == want }, time.Second, 5*time.Millisecond,
		"connector calls never reached %d", want)
}

func (h *harness) open(t *testing.T) *fakeHandle {
	t.Helper()
	fh := h.conn.last()
	fh.events <- Event{Kind: EventState, State: Open}
	h.waitState(t, Open)
	select {
	case <-h.opened:
	case <-time.After(time.Second):
		t.Fatal("OnOpen was not called")
	}
	return fh
}

// -----------------------------------------------------------------------------
// State Machine
// -----------------------------------------------------------------------------

func TestLifecycle_QRUntilOpen(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, Connecting, h.lc.State())

	h.conn.last().events <- Event{Kind: EventQR, QR: "pair-me"}
	require.Eventually(t, func() bool { return h.lc.Status().QR != "" }, time.Second, 5*time.Millisecond)
	assert.Contains(t, h.lc.Status().QR, config.MimePNGDataURL)
	assert.False(t, h.lc.Status().Connected)

	h.open(t)
	st := h.lc.Status()
	assert.True(t, st.Connected)
	assert.Empty(t, st.QR, "QR challenge must be cleared once open")
	assert.True(t, h.lc.HasEverConnected())
}

func TestLifecycle_NoReconnectBeforeFirstOpen(t *testing.T) {
	h := newHarness(t, false)

	h.conn.last().events <- Event{Kind: EventState, State: ClosedRecoverable, Reason: "qr timeout"}
	h.waitState(t, ClosedRecoverable)

	h.noTimers(t, 1)
	h.clk.Advance(time.Minute)
	assert.Never(t, func() bool { return h.conn.Calls() > 1 }, 50*time.Millisecond, 5*time.Millisecond,
		"no reconnect may be scheduled before pairing")
}

func TestLifecycle_ReconnectAfterDrop(t *testing.T) {
	h := newHarness(t, false)
	fh := h.open(t)

	fh.events <- Event{Kind: EventState, State: ClosedRecoverable, Reason: "connection lost"}
	h.waitState(t, ClosedRecoverable)
	h.waitTimers(t, 1)
	h.noTimers(t, 2)

	h.clk.Advance(4 * time.Second)
	assert.Equal(t, 1, h.conn.Calls())

	h.clk.Advance(time.Second)
	h.waitCalls(t, 2)
	h.waitState(t, Connecting)
}

func TestLifecycle_ReconnectFailureRetriesAgain(t *testing.T) {
	h := newHarness(t, false, nil, errors.New("dial tcp: timeout"))
	fh := h.open(t)

	fh.events <- Event{Kind: EventState, State: ClosedRecoverable}
	h.waitState(t, ClosedRecoverable)
	h.waitTimers(t, 1)
	h.clk.Advance(5 * time.Second)

	h.waitCalls(t, 2)
	h.waitTimers(t, 1)
	assert.Equal(t, ClosedRecoverable, h.lc.State())
	h.noTimers(t, 2)
}

func TestLifecycle_LoggedOutTerminates(t *testing.T) {
	h := newHarness(t, false)
	fh := h.open(t)

	fh.events <- Event{Kind: EventState, State: ClosedLoggedOut, Reason: "invalid_auth"}

	select {
	case err := <-h.terminated:
		assert.ErrorIs(t, err, ErrLoggedOut)
	case <-time.After(time.Second):
		t.Fatal("Terminate was not called")
	}
	assert.Equal(t, ClosedLoggedOut, h.lc.State())
	h.noTimers(t, 1)
}

func TestLifecycle_ConnectRejectedCredentials(t *testing.T) {
	h := newHarness(t, false, errors.Join(ErrLoggedOut, errors.New("invalid_auth")))

	select {
	case err := <-h.terminated:
		assert.ErrorIs(t, err, ErrLoggedOut)
	default:
		t.Fatal("Terminate was not called synchronously")
	}
	assert.ErrorIs(t, h.lc.WaitOpen(context.Background()), ErrLoggedOut)
}

func TestLifecycle_StaleEventsIgnored(t *testing.T) {
	h := newHarness(t, false)
	first := h.open(t)

	h.lc.Restart(context.Background())
	assert.True(t, first.isEnded())
	assert.Equal(t, Disconnected, h.lc.State())

	h.waitTimers(t, 1)
	h.clk.Advance(config.LocalReconnectDelay)
	h.waitCalls(t, 2)
	second := h.open(t)
	require.NotSame(t, first, second)

	first.events <- Event{Kind: EventState, State: ClosedLoggedOut}
	assert.Never(t, func() bool { return len(h.terminated) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, Open, h.lc.State())
}

// -----------------------------------------------------------------------------
// Credentials & Disconnect
// -----------------------------------------------------------------------------

func TestLifecycle_PersistsCredentials(t *testing.T) {
	h := newHarness(t, false)
	h.conn.last().events <- Event{Kind: EventCredentials, Credentials: map[string][]byte{"creds.json": []byte("{}")}}
	h.open(t)

	assert.True(t, h.lc.Status().AuthSessionExists)
	data, err := os.ReadFile(filepath.Join(h.authDir, "creds.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestLifecycle_DisconnectLocal(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.lc.Credentials.Save(map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
	fh := h.open(t)
	fh.logoutErr = errors.New("already logged out")

	h.lc.Disconnect(context.Background())

	assert.True(t, fh.loggedOut)
	assert.True(t, fh.isEnded())
	assert.False(t, h.lc.Credentials.Exists(), "credentials are purged even when logout fails")
	assert.False(t, h.lc.HasEverConnected())
	assert.Equal(t, Disconnected, h.lc.State())

	h.waitTimers(t, 1)
	h.clk.Advance(config.LocalReconnectDelay)
	h.waitCalls(t, 2)
	assert.Empty(t, h.terminated)
}

func TestLifecycle_DisconnectSupervised(t *testing.T) {
	h := newHarness(t, true)
	h.open(t)

	h.lc.Disconnect(context.Background())
	assert.Empty(t, h.terminated)

	h.waitTimers(t, 1)
	h.clk.Advance(config.RestartExitDelay)
	select {
	case err := <-h.terminated:
		assert.ErrorIs(t, err, ErrRestartRequested)
	case <-time.After(time.Second):
		t.Fatal("Terminate was not called")
	}
	assert.Equal(t, 1, h.conn.Calls())
}

// -----------------------------------------------------------------------------
// Collaborator Views
// -----------------------------------------------------------------------------

func TestLifecycle_MessengerOnlyWhenOpen(t *testing.T) {
	h := newHarness(t, false)
	_, ok := h.lc.Messenger()
	assert.False(t, ok)

	_, err := h.lc.ListGroups(context.Background())
	assert.Error(t, err)

	fh := h.open(t)
	fh.groups = []Group{{ID: "C1", Name: "team", Members: 4}}

	m, ok := h.lc.Messenger()
	require.True(t, ok)
	require.NoError(t, m.SendText(context.Background(), "C1", "hi"))
	assert.Equal(t, []string{"C1: hi"}, fh.sent)

	groups, err := h.lc.ListGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fh.groups, groups)
}

func TestLifecycle_WaitOpenIdle(t *testing.T) {
	h := newHarness(t, false, ErrNoCredentials)
	assert.ErrorIs(t, h.lc.WaitOpen(context.Background()), ErrNoCredentials)

	h.lc.Reconnect()
	assert.Equal(t, 2, h.conn.Calls())
	h.open(t)
	assert.NoError(t, h.lc.WaitOpen(context.Background()))
}

func TestLifecycle_WaitOpenTimeout(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.lc.WaitOpen(ctx), context.DeadlineExceeded)
}
