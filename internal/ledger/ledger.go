// Package ledger records birthday deliveries. A plain text file keeps the
// human-readable audit trail; an SQLite index keyed by (name, civil date)
// answers whether someone was already greeted.
package ledger

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
)

// sentLine matches success lines of the text ledger so an index can be
// rebuilt from an existing audit file.
var sentLine = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2}) [^\]]*\] \[(\d{2}-\d{2})\] - Ucapan terkirim untuk (.+?) di grup (.*)$`)

// Ledger implements engine.Ledger.
type Ledger struct {
	textPath  string
	indexPath string
	db        *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens (or creates) the text ledger and its index. When the index is
// new and the text file already has success lines, they are imported.
func Open(ctx context.Context, textPath, indexPath string) (*Ledger, error) {
	for _, p := range []string{textPath, indexPath} {
		if err := os.MkdirAll(filepath.Dir(p), config.DirPermUserRWX); err != nil {
			return nil, &engine.StorageError{Op: config.ErrLedgerOpen, Path: p, Err: err}
		}
	}

	db, err := sql.Open("sqlite", indexPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &engine.StorageError{Op: config.ErrLedgerOpen, Path: indexPath, Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, &engine.StorageError{Op: config.ErrLedgerMigrate, Path: indexPath, Err: err}
	}

	l := &Ledger{
		textPath:  textPath,
		indexPath: indexPath,
		db:        db,
		entropy:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := l.backfill(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the index.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the text ledger location.
func (l *Ledger) Path() string { return l.textPath }

// WasNotified reports whether a successful delivery to name is recorded for
// the civil date of day. Names are compared exactly.
func (l *Ledger) WasNotified(ctx context.Context, name string, day engine.Moment) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM deliveries WHERE name = ? AND civil_date = ? AND status = ?)`,
		name, day.Date, config.StatusSent,
	).Scan(&exists)
	if err != nil {
		return false, &engine.StorageError{Op: config.ErrLedgerQuery, Path: l.indexPath, Err: err}
	}
	return exists, nil
}

// Record stores a successful delivery. A second success for the same person
// and day is ignored and not written to the text file.
func (l *Ledger) Record(ctx context.Context, name, groupName string, day engine.Moment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	inserted, err := l.insert(ctx, name, day, config.StatusSent, groupName, "")
	if err != nil {
		return err
	}
	if !inserted {
		slog.DebugContext(ctx, config.MsgLedgerDup,
			config.LogKeyComponent, config.CompLedger,
			config.LogKeyName, name,
			config.LogKeyDayKey, day.DayKey,
		)
		return nil
	}
	return l.appendLine(day, fmt.Sprintf(config.LedgerSentFormat, name, groupName))
}

// RecordFailure stores a failed attempt. Failures never count as notified.
func (l *Ledger) RecordFailure(ctx context.Context, name string, cause error, day engine.Moment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	if _, err := l.insert(ctx, name, day, config.StatusFailed, "", detail); err != nil {
		return err
	}
	return l.appendLine(day, fmt.Sprintf(config.LedgerFailureFormat, name, detail))
}

// Clear empties the text ledger and the index, making everyone eligible again.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.WriteFile(l.textPath, nil, config.FilePermShared); err != nil {
		return &engine.StorageError{Op: config.ErrLedgerWrite, Path: l.textPath, Err: err}
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM deliveries`); err != nil {
		return &engine.StorageError{Op: config.ErrLedgerWrite, Path: l.indexPath, Err: err}
	}
	slog.InfoContext(ctx, config.MsgLedgerCleared, config.LogKeyComponent, config.CompLedger)
	return nil
}

// Tail returns up to n non-empty lines of the text ledger, most recent first.
// A missing file yields no lines.
func (l *Ledger) Tail(n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines, err := l.readLines()
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	slices.Reverse(lines)
	return lines, nil
}

func (l *Ledger) insert(ctx context.Context, name string, day engine.Moment, status, group, detail string) (bool, error) {
	id := ulid.MustNew(ulid.Timestamp(day.Time), l.entropy).String()
	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (id, name, civil_date, day_key, status, group_name, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, day.Date, day.DayKey, status, group, detail, day.Time.Format(time.RFC3339),
	)
	if err != nil {
		return false, &engine.StorageError{Op: config.ErrLedgerWrite, Path: l.indexPath, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &engine.StorageError{Op: config.ErrLedgerWrite, Path: l.indexPath, Err: err}
	}
	return n == 1, nil
}

func (l *Ledger) appendLine(day engine.Moment, msg string) error {
	f, err := os.OpenFile(l.textPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, config.FilePermShared)
	if err != nil {
		return &engine.StorageError{Op: config.ErrLedgerWrite, Path: l.textPath, Err: err}
	}
	if _, err := fmt.Fprintf(f, config.LedgerLineFormat, day.Timestamp, day.DayKey, msg); err != nil {
		_ = f.Close()
		return &engine.StorageError{Op: config.ErrLedgerWrite, Path: l.textPath, Err: err}
	}
	if err := f.Close(); err != nil {
		return &engine.StorageError{Op: config.ErrLedgerWrite, Path: l.textPath, Err: err}
	}
	return nil
}

func (l *Ledger) readLines() ([]string, error) {
	f, err := os.Open(l.textPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StorageError{Op: config.ErrLedgerRead, Path: l.textPath, Err: err}
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &engine.StorageError{Op: config.ErrLedgerRead, Path: l.textPath, Err: err}
	}
	return lines, nil
}

// backfill imports success lines from the text file into an empty index.
func (l *Ledger) backfill(ctx context.Context) error {
	var count int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&count); err != nil {
		return &engine.StorageError{Op: config.ErrLedgerQuery, Path: l.indexPath, Err: err}
	}
	if count > 0 {
		return nil
	}

	lines, err := l.readLines()
	if err != nil {
		return err
	}
	for _, line := range lines {
		m := sentLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, err := time.Parse(config.DateFormatFullDash, m[1])
		if err != nil {
			continue
		}
		day := engine.Moment{Time: date, Date: m[1], DayKey: m[2]}
		if _, err := l.insert(ctx, m[3], day, config.StatusSent, m[4], ""); err != nil {
			return err
		}
	}
	return nil
}
