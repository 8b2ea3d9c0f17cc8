package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// Roster supplies the valid entries of the current roster. It is re-read on
// every scan so dashboard edits apply without a restart.
type Roster interface {
	Active(ctx context.Context) ([]Entry, error)
}

// Summary is the outcome of one daily scan.
type Summary struct {
	DayKey  string
	Matches int
	Sent    int
	Skipped int
	Failed  int
	Results []Result
}

// Scanner runs the daily match-and-dispatch cycle. Only one cycle runs at a
// time; overlapping triggers get ErrScanInProgress.
type Scanner struct {
	Roster     Roster
	Ledger     Ledger
	Dispatcher *Dispatcher
	Clock      *CivilClock
	// Pacing is the pause between two consecutive send attempts.
	Pacing time.Duration

	running sync.Mutex
}

// Run performs one scan for the current civil day. Per-entry failures are
// reported in the Summary; a storage error aborts the cycle and is returned
// together with the partial summary.
func (s *Scanner) Run(ctx context.Context, trigger string) (Summary, error) {
	if !s.running.TryLock() {
		slog.WarnContext(ctx, config.MsgScanBusy,
			config.LogKeyComponent, config.CompScan,
			config.LogKeyTrigger, trigger,
		)
		return Summary{}, ErrScanInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	day := s.Clock.Today()
	log := slog.With(
		config.LogKeyComponent, config.CompScan,
		config.LogKeyDayKey, day.DayKey,
		config.LogKeyTrigger, trigger,
	)
	log.InfoContext(ctx, config.MsgScanStarted)

	sum := Summary{DayKey: day.DayKey}

	entries, err := s.Roster.Active(ctx)
	if err != nil {
		log.ErrorContext(ctx, config.MsgScanAborted, config.LogKeyError, err)
		return sum, err
	}

	attempted := false
	for _, e := range entries {
		if !e.Matches(day) {
			continue
		}
		sum.Matches++
		log.InfoContext(ctx, config.MsgScanMatch, config.LogKeyName, e.Name, config.LogKeyGroup, e.GroupName)

		notified, err := s.Ledger.WasNotified(ctx, e.Name, day)
		if err != nil {
			log.ErrorContext(ctx, config.MsgScanAborted, config.LogKeyError, err)
			return sum, err
		}
		if notified {
			log.InfoContext(ctx, config.MsgScanSkipped, config.LogKeyName, e.Name)
			sum.add(Result{Entry: e, Outcome: Skipped})
			continue
		}

		if attempted {
			if err := s.pace(ctx); err != nil {
				log.WarnContext(ctx, config.MsgScanAborted, config.LogKeyError, err)
				return sum, err
			}
		}

		res, err := s.Dispatcher.Send(ctx, e, day)
		sum.add(res)
		attempted = attempted || res.Attempted
		if err != nil {
			log.ErrorContext(ctx, config.MsgScanAborted, config.LogKeyError, err)
			return sum, err
		}
	}

	if sum.Matches == 0 {
		log.InfoContext(ctx, config.MsgScanNone)
	}
	log.InfoContext(ctx, config.MsgScanDone,
		config.LogKeyMatches, sum.Matches,
		config.LogKeySent, sum.Sent,
		config.LogKeySkipped, sum.Skipped,
		config.LogKeyFailed, sum.Failed,
		config.LogKeyDuration, time.Since(start).Milliseconds(),
	)
	return sum, nil
}

func (s *Scanner) pace(ctx context.Context) error {
	if s.Pacing <= 0 {
		return nil
	}
	select {
	case <-s.Clock.Clock.After(s.Pacing):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case Sent:
		s.Sent++
	case Skipped:
		s.Skipped++
	default:
		s.Failed++
	}
}
