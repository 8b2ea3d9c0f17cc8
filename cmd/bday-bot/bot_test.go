package main

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/session"
)

// stalledConnector never answers until its context ends, like a Slack
// handshake stuck on the network.
type stalledConnector struct {
	entered chan struct{}
}

func (c *stalledConnector) Connect(ctx context.Context, _ *session.CredentialStore) (session.Handle, error) {
	close(c.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return strconv.Itoa(port)
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.DataDir = dir
	s.RosterFile = filepath.Join(dir, config.DefaultRosterFile)
	s.LedgerFile = filepath.Join(dir, config.DefaultLedgerFile)
	s.LedgerIndex = filepath.Join(dir, config.DefaultLedgerIndex)
	s.AuthDir = filepath.Join(dir, config.DefaultAuthDir)
	s.BindAddr = "127.0.0.1"
	s.Port = freePort(t)
	return s
}

// -----------------------------------------------------------------------------
// Serve
// -----------------------------------------------------------------------------

func TestServe_DashboardAnswersWhileSessionConnects(t *testing.T) {
	s := testSettings(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := newBot(ctx, s, false)
	require.NoError(t, err)
	defer b.close()

	conn := &stalledConnector{entered: make(chan struct{})}
	b.lifecycle.Connector = conn

	done := make(chan error, 1)
	go func() { done <- b.serve(ctx) }()

	select {
	case <-conn.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection attempt was made")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond, "dashboard must be up before the session answers")
	assert.Equal(t, session.Connecting, b.lifecycle.State())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
