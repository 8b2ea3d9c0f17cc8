package session

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSlackAPI struct {
	mock.Mock
}

func (m *MockSlackAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	args := m.Called(ctx, channelID, options)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockSlackAPI) GetConversationsForUserContext(ctx context.Context, params *slack.GetConversationsForUserParameters) ([]slack.Channel, string, error) {
	args := m.Called(ctx, params.Cursor)
	return args.Get(0).([]slack.Channel), args.String(1), args.Error(2)
}

func (m *MockSlackAPI) SendAuthRevokeContext(ctx context.Context, token string) (*slack.AuthRevokeResponse, error) {
	args := m.Called(ctx, token)
	return nil, args.Error(0)
}

func channel(id, name string, members int) slack.Channel {
	var ch slack.Channel
	ch.ID = id
	ch.Name = name
	ch.NumMembers = members
	return ch
}

func newTestHandle(api slackAPI) *slackHandle {
	return &slackHandle{
		api:    api,
		events: make(chan Event, 4),
		cancel: func() {},
		creds:  map[string][]byte{credBotToken: []byte("xoxb"), credAppToken: []byte("xapp")},
	}
}

// -----------------------------------------------------------------------------
// Handle Operations
// -----------------------------------------------------------------------------

func TestSlackHandle_ListGroupsPaginates(t *testing.T) {
	api := new(MockSlackAPI)
	api.On("GetConversationsForUserContext", mock.Anything, "").
		Return([]slack.Channel{channel("C1", "general", 12)}, "page2", nil).Once()
	api.On("GetConversationsForUserContext", mock.Anything, "page2").
		Return([]slack.Channel{channel("C2", "team", 5)}, "", nil).Once()

	groups, err := newTestHandle(api).ListGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Group{
		{ID: "C1", Name: "general", Members: 12},
		{ID: "C2", Name: "team", Members: 5},
	}, groups)
	api.AssertExpectations(t)
}

func TestSlackHandle_SendText(t *testing.T) {
	api := new(MockSlackAPI)
	api.On("PostMessageContext", mock.Anything, "C1", mock.Anything).Return("C1", "1.0", nil).Once()
	api.On("PostMessageContext", mock.Anything, "C404", mock.Anything).
		Return("", "", slack.SlackErrorResponse{Err: "channel_not_found"}).Once()

	h := newTestHandle(api)
	assert.NoError(t, h.SendText(context.Background(), "C1", "Selamat"))

	err := h.SendText(context.Background(), "C404", "Selamat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
	api.AssertExpectations(t)
}

func TestSlackHandle_Logout(t *testing.T) {
	api := new(MockSlackAPI)
	api.On("SendAuthRevokeContext", mock.Anything, "").Return(nil).Once()

	assert.NoError(t, newTestHandle(api).Logout(context.Background()))
	api.AssertExpectations(t)
}

func TestSlackHandle_Translate(t *testing.T) {
	h := newTestHandle(nil)

	ev, ok := h.translate(socketmode.Event{Type: socketmode.EventTypeConnecting})
	require.True(t, ok)
	assert.Equal(t, Connecting, ev.State)

	ev, ok = h.translate(socketmode.Event{Type: socketmode.EventTypeConnected})
	require.True(t, ok)
	assert.Equal(t, Open, ev.State)
	creds := <-h.events
	assert.Equal(t, EventCredentials, creds.Kind)
	assert.Equal(t, "xoxb", string(creds.Credentials[credBotToken]))

	_, _ = h.translate(socketmode.Event{Type: socketmode.EventTypeConnected})
	assert.Empty(t, h.events, "credentials are persisted once per handle")

	ev, ok = h.translate(socketmode.Event{Type: socketmode.EventTypeInvalidAuth})
	require.True(t, ok)
	assert.Equal(t, ClosedLoggedOut, ev.State)

	_, ok = h.translate(socketmode.Event{Type: socketmode.EventTypeEventsAPI})
	assert.False(t, ok)
}

// -----------------------------------------------------------------------------
// Connector
// -----------------------------------------------------------------------------

func TestSlackConnector_NoTokens(t *testing.T) {
	c := &SlackConnector{}
	_, err := c.Connect(context.Background(), NewCredentialStore(t.TempDir()))
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestSlackConnector_PairingQR(t *testing.T) {
	c := &SlackConnector{InstallURL: "https://slack.com/oauth/v2/authorize?client_id=1"}
	h, err := c.Connect(context.Background(), NewCredentialStore(t.TempDir()))
	require.NoError(t, err)

	var got []Event
	for ev := range h.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, EventQR, got[0].Kind)
	assert.Equal(t, c.InstallURL, got[0].QR)
	assert.Equal(t, ClosedRecoverable, got[1].State)
	assert.ErrorIs(t, h.SendText(context.Background(), "C1", "x"), ErrNoCredentials)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		loggedOut bool
	}{
		{"Invalid auth", slack.SlackErrorResponse{Err: "invalid_auth"}, true},
		{"Revoked", slack.SlackErrorResponse{Err: "token_revoked"}, true},
		{"Plain auth error", errors.New("not_authed"), true},
		{"Rate limited", slack.SlackErrorResponse{Err: "ratelimited"}, false},
		{"Network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.Equal(t, tt.loggedOut, errors.Is(err, ErrLoggedOut))
			assert.Contains(t, err.Error(), tt.err.Error())
		})
	}
}
