package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
	"github.com/nakiaasuryanto/bday-bot/internal/ledger"
	"github.com/nakiaasuryanto/bday-bot/internal/roster"
	"github.com/nakiaasuryanto/bday-bot/internal/scheduler"
	"github.com/nakiaasuryanto/bday-bot/internal/server"
	"github.com/nakiaasuryanto/bday-bot/internal/session"
)

// bot wires the components every command shares. Nothing connects until
// connect or serve is called.
type bot struct {
	settings  *config.Settings
	ledger    *ledger.Ledger
	roster    *roster.Store
	composer  *engine.Composer
	clock     *engine.CivilClock
	lifecycle *session.Lifecycle
	scanner   *engine.Scanner
}

func newBot(ctx context.Context, s *config.Settings, debug bool) (*bot, error) {
	composer, err := engine.NewComposer(s.Language)
	if err != nil {
		return nil, err
	}

	led, err := ledger.Open(ctx, s.LedgerFile, s.LedgerIndex)
	if err != nil {
		return nil, err
	}

	b := &bot{
		settings: s,
		ledger:   led,
		roster:   roster.NewStore(s.RosterFile),
		composer: composer,
		clock:    engine.NewCivilClock(clockwork.NewRealClock(), s.ZoneLabel, s.ZoneOffset),
	}
	b.lifecycle = &session.Lifecycle{
		Connector: &session.SlackConnector{
			BotToken:   s.Slack.BotToken,
			AppToken:   s.Slack.AppToken,
			InstallURL: s.Slack.InstallURL,
			Debug:      debug,
		},
		Credentials:    session.NewCredentialStore(s.AuthDir),
		ReconnectDelay: s.ReconnectDelay,
		Supervised:     s.Supervised,
	}
	b.scanner = &engine.Scanner{
		Roster: b.roster,
		Ledger: led,
		Dispatcher: &engine.Dispatcher{
			Session:  b.lifecycle,
			Ledger:   led,
			Composer: composer,
		},
		Clock:  b.clock,
		Pacing: s.Pacing,
	}
	return b, nil
}

func (b *bot) close() {
	b.lifecycle.Shutdown()
	if err := b.ledger.Close(); err != nil {
		slog.Warn(config.ErrLedgerWrite,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
	}
}

// connect starts the session and blocks until it is open, logged out or
// config.ConnectWaitTimeout elapses.
func (b *bot) connect(ctx context.Context) error {
	b.lifecycle.Start(ctx)
	slog.Info(config.MsgSessionWait, config.LogKeyComponent, config.CompMain)

	waitCtx, cancel := context.WithTimeout(ctx, config.ConnectWaitTimeout)
	defer cancel()
	return b.lifecycle.WaitOpen(waitCtx)
}

// scan runs one birthday check and logs its failure; it is the job shared by
// the scheduler and the session-open hook.
func (b *bot) scan(trigger string) func(ctx context.Context) {
	return func(ctx context.Context) {
		if _, err := b.scanner.Run(ctx, trigger); err != nil && !errors.Is(err, engine.ErrScanInProgress) {
			slog.Error(config.MsgScanAborted,
				config.LogKeyComponent, config.CompMain,
				config.LogKeyTrigger, trigger,
				config.LogKeyError, err,
			)
		}
	}
}

// serve runs the session, the daily scheduler and the dashboard until ctx
// ends or the session asks the process to stop.
func (b *bot) serve(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	b.lifecycle.OnOpen = b.scan(config.TriggerOpen)
	b.lifecycle.Terminate = cancel

	sched, err := scheduler.New(b.settings.ScanSchedule, b.settings.Location(), b.scan(config.TriggerSchedule))
	if err != nil {
		return err
	}

	srv := &server.Server{
		Addr:     b.settings.Addr(),
		Roster:   b.roster,
		Ledger:   b.ledger,
		Session:  b.lifecycle,
		Scanner:  b.scanner,
		Composer: b.composer,
		Clock:    b.clock,
	}
	if err := srv.RefreshCalendar(ctx); err != nil {
		slog.Warn(config.MsgCalendarFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
	} else {
		slog.Info(config.MsgCalendarReady, config.LogKeyComponent, config.CompMain)
	}

	sched.Start(ctx)
	// The first connection attempt may wait on the network; the dashboard
	// and the scheduler do not.
	go b.lifecycle.Start(ctx)

	serveErr := srv.Start(ctx)
	if serveErr != nil {
		cancel(serveErr)
	}

	stopCtx, stop := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer stop()
	if err := sched.Stop(stopCtx); err != nil {
		slog.Warn(config.MsgSchedulerStop,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
	}

	if serveErr != nil {
		return serveErr
	}
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, session.ErrLoggedOut), errors.Is(cause, session.ErrRestartRequested):
		slog.Info(config.MsgRestartExit,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyReason, cause.Error(),
		)
		return cause
	default:
		slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
		return nil
	}
}

// preview composes the greeting for the roster record at index as it would
// be sent today.
func (b *bot) preview(ctx context.Context, index int) (string, error) {
	records, err := b.roster.Records(ctx)
	if err != nil {
		return "", err
	}
	if index >= len(records) {
		return "", fmt.Errorf("%w: %d", roster.ErrIndexOutOfRange, index)
	}
	e, verr := roster.Validate(index, records[index])
	if verr != nil {
		return "", verr
	}
	birth, err := e.Birth()
	if err != nil {
		return "", err
	}
	return b.composer.Compose(e, engine.Age(birth, b.clock.Today().Time))
}
