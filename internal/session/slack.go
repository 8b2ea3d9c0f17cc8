package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// Credential file names inside the auth directory.
const (
	credBotToken = "bot_token"
	credAppToken = "app_token"
)

// authErrors are the Slack error codes that mean the tokens are dead.
var authErrors = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
}

// SlackConnector opens Socket Mode sessions. Tokens given here take
// precedence over the ones found in the credential store.
type SlackConnector struct {
	BotToken string
	AppToken string
	// InstallURL is offered as a pairing QR code when no tokens are known.
	InstallURL string
	Debug      bool
}

// Connect validates the tokens with auth.test and starts the Socket Mode
// loop. Rejected tokens yield an error wrapping ErrLoggedOut.
func (c *SlackConnector) Connect(ctx context.Context, creds *CredentialStore) (Handle, error) {
	stored, err := creds.Load()
	if err != nil {
		return nil, err
	}
	bot := firstNonEmpty(c.BotToken, string(stored[credBotToken]))
	app := firstNonEmpty(c.AppToken, string(stored[credAppToken]))

	if bot == "" || app == "" {
		if c.InstallURL != "" {
			return pairingHandle(c.InstallURL), nil
		}
		return nil, ErrNoCredentials
	}

	logger := slog.NewLogLogger(slog.Default().Handler().WithAttrs([]slog.Attr{
		slog.String(config.LogKeyComponent, config.CompSlack),
	}), slog.LevelDebug)

	api := slack.New(bot,
		slack.OptionAppLevelToken(app),
		slack.OptionDebug(c.Debug),
		slack.OptionLog(logger),
	)

	if _, err := api.AuthTestContext(ctx); err != nil {
		return nil, classify(err)
	}

	sm := socketmode.New(api,
		socketmode.OptionDebug(c.Debug),
		socketmode.OptionLog(logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	h := &slackHandle{
		api:    api,
		events: make(chan Event, config.SessionEventBuffer),
		cancel: cancel,
		creds: map[string][]byte{
			credBotToken: []byte(bot),
			credAppToken: []byte(app),
		},
	}
	go h.run(runCtx, sm)
	return h, nil
}

// slackAPI is the part of *slack.Client a handle talks to.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationsForUserContext(ctx context.Context, params *slack.GetConversationsForUserParameters) ([]slack.Channel, string, error)
	SendAuthRevokeContext(ctx context.Context, token string) (*slack.AuthRevokeResponse, error)
}

type slackHandle struct {
	api    slackAPI
	events chan Event
	cancel context.CancelFunc
	creds  map[string][]byte

	credsOnce sync.Once
	endOnce   sync.Once
}

func (h *slackHandle) Events() <-chan Event { return h.events }

func (h *slackHandle) SendText(ctx context.Context, groupID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, config.SendTimeout)
	defer cancel()
	if _, _, err := h.api.PostMessageContext(ctx, groupID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("%s: %w", config.ErrSend, err)
	}
	return nil
}

// ListGroups pages through every non-archived channel the bot is a member of.
func (h *slackHandle) ListGroups(ctx context.Context) ([]Group, error) {
	params := &slack.GetConversationsForUserParameters{
		Types:           []string{"public_channel", "private_channel"},
		Limit:           config.SlackListPageSize,
		ExcludeArchived: true,
	}
	var groups []Group
	for {
		channels, next, err := h.api.GetConversationsForUserContext(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, ch := range channels {
			groups = append(groups, Group{ID: ch.ID, Name: ch.Name, Members: ch.NumMembers})
		}
		if next == "" {
			return groups, nil
		}
		params.Cursor = next
	}
}

// Logout revokes the bot token.
func (h *slackHandle) Logout(ctx context.Context) error {
	_, err := h.api.SendAuthRevokeContext(ctx, "")
	return err
}

func (h *slackHandle) End() error {
	h.endOnce.Do(h.cancel)
	return nil
}

// run consumes Socket Mode events until the connection ends for good, then
// emits the closing state and closes the event channel.
func (h *slackHandle) run(ctx context.Context, sm *socketmode.Client) {
	defer close(h.events)

	done := make(chan error, config.ChannelBufferSize)
	go func() { done <- sm.RunContext(ctx) }()

	loggedOut := false
	for {
		select {
		case evt := <-sm.Events:
			if evt.Request != nil {
				sm.Ack(*evt.Request)
			}
			if evt.Type == socketmode.EventTypeInvalidAuth {
				loggedOut = true
			}
			out, ok := h.translate(evt)
			if ok {
				h.emit(ctx, out)
			}

		case err := <-done:
			if ctx.Err() != nil {
				return
			}
			state := ClosedRecoverable
			if loggedOut || errors.Is(classify(err), ErrLoggedOut) {
				state = ClosedLoggedOut
			}
			h.emit(ctx, Event{Kind: EventState, State: state, Err: err, Reason: reasonOf(err)})
			return
		}
	}
}

// translate maps a Socket Mode event onto a lifecycle event. Connected
// also persists the tokens the first time it is seen.
func (h *slackHandle) translate(evt socketmode.Event) (Event, bool) {
	slog.Debug(config.MsgSlackEvent,
		config.LogKeyComponent, config.CompSlack,
		config.LogKeyType, string(evt.Type),
	)
	switch evt.Type {
	case socketmode.EventTypeConnecting, socketmode.EventTypeDisconnect:
		return Event{Kind: EventState, State: Connecting}, true
	case socketmode.EventTypeConnected:
		h.credsOnce.Do(func() {
			h.events <- Event{Kind: EventCredentials, Credentials: h.creds}
		})
		return Event{Kind: EventState, State: Open}, true
	case socketmode.EventTypeInvalidAuth:
		return Event{Kind: EventState, State: ClosedLoggedOut, Reason: "invalid_auth", Err: ErrLoggedOut}, true
	default:
		return Event{}, false
	}
}

func (h *slackHandle) emit(ctx context.Context, ev Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

// pairingHandle reports a QR challenge pointing at the app install page and
// then closes, leaving the lifecycle idle until credentials exist.
func pairingHandle(installURL string) Handle {
	events := make(chan Event, 2)
	events <- Event{Kind: EventQR, QR: installURL}
	events <- Event{Kind: EventState, State: ClosedRecoverable, Reason: "awaiting_pairing", Err: ErrNoCredentials}
	close(events)
	return &idleHandle{events: events}
}

type idleHandle struct {
	events chan Event
}

func (h *idleHandle) Events() <-chan Event { return h.events }

func (h *idleHandle) SendText(context.Context, string, string) error {
	return ErrNoCredentials
}

func (h *idleHandle) ListGroups(context.Context) ([]Group, error) {
	return nil, ErrNoCredentials
}

func (h *idleHandle) Logout(context.Context) error { return nil }

func (h *idleHandle) End() error { return nil }

// classify wraps Slack auth failures with ErrLoggedOut.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if authErrors[reasonOf(err)] {
		return fmt.Errorf("%w: %w", ErrLoggedOut, err)
	}
	return fmt.Errorf("%s: %w", config.ErrConnect, err)
}

func reasonOf(err error) string {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return resp.Err
	}
	if err != nil && authErrors[err.Error()] {
		return err.Error()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
