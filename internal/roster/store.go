package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
)

// ErrIndexOutOfRange is returned for positional edits past the end of the roster.
var ErrIndexOutOfRange = errors.New(config.ErrIndexRange)

// LoadResult is one read of the roster file.
type LoadResult struct {
	Records  []Record
	Valid    []engine.Entry
	Rejected []*engine.ValidationError
}

// Store persists the roster as a JSON array. Every call re-reads the file;
// nothing is cached between calls.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the roster file location.
func (s *Store) Path() string { return s.path }

// Load reads and validates the roster. A missing file is created empty.
// Invalid records are reported in Rejected and never fail the load.
func (s *Store) Load(ctx context.Context) (*LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}

	res := &LoadResult{Records: records}
	for i, r := range records {
		e, verr := Validate(i, r)
		if verr != nil {
			res.Rejected = append(res.Rejected, verr)
			continue
		}
		res.Valid = append(res.Valid, e)
	}
	return res, nil
}

// Active returns the valid entries and logs every rejected record.
func (s *Store) Active(ctx context.Context) ([]engine.Entry, error) {
	res, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, rej := range res.Rejected {
		slog.WarnContext(ctx, config.MsgRecordRejected,
			config.LogKeyComponent, config.CompRoster,
			config.LogKeyIndex, rej.Index,
			config.LogKeyName, rej.Name,
			config.LogKeyFields, rej.Fields,
		)
	}
	slog.DebugContext(ctx, config.MsgRosterLoaded,
		config.LogKeyComponent, config.CompRoster,
		config.LogKeyTotal, len(res.Records),
		config.LogKeyValid, len(res.Valid),
		config.LogKeyRejected, len(res.Rejected),
	)
	return res.Valid, nil
}

// Records returns every record, valid or not, in file order.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

// Save replaces the whole roster.
func (s *Store) Save(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(ctx, records)
}

// Add appends records at the end of the roster.
func (s *Store) Add(ctx context.Context, records ...Record) error {
	return s.update(ctx, func(all []Record) ([]Record, error) {
		return append(all, records...), nil
	})
}

// Replace overwrites the record at index.
func (s *Store) Replace(ctx context.Context, index int, r Record) error {
	return s.update(ctx, func(all []Record) ([]Record, error) {
		if index < 0 || index >= len(all) {
			return nil, ErrIndexOutOfRange
		}
		all[index] = r
		return all, nil
	})
}

// Remove deletes the record at index.
func (s *Store) Remove(ctx context.Context, index int) error {
	return s.update(ctx, func(all []Record) ([]Record, error) {
		if index < 0 || index >= len(all) {
			return nil, ErrIndexOutOfRange
		}
		return append(all[:index], all[index+1:]...), nil
	})
}

func (s *Store) update(ctx context.Context, fn func([]Record) ([]Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readLocked(ctx)
	if err != nil {
		return err
	}
	all, err = fn(all)
	if err != nil {
		return err
	}
	return s.writeLocked(ctx, all)
}

func (s *Store) readLocked(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.writeLocked(ctx, nil); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, config.MsgRosterCreated,
			config.LogKeyComponent, config.CompRoster,
			config.LogKeyFile, s.path,
		)
		return []Record{}, nil
	}
	if err != nil {
		return nil, &engine.StorageError{Op: config.ErrRosterRead, Path: s.path, Err: err}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, &engine.StorageError{Op: config.ErrRosterParse, Path: s.path, Err: err}
	}
	records := make([]Record, 0, len(elems))
	for i, raw := range elems {
		r, err := decodeRecord(raw)
		if err != nil {
			return nil, &engine.StorageError{Op: config.ErrRosterParse, Path: s.path, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		records = append(records, r)
	}
	return records, nil
}

// writeLocked stores records with two-space indentation and no trailing
// newline, through a temporary file renamed over the target.
func (s *Store) writeLocked(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", config.JSONIndent)
	if err := enc.Encode(records); err != nil {
		return &engine.StorageError{Op: config.ErrRosterWrite, Path: s.path, Err: err}
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	if err := writeAtomic(s.path, data); err != nil {
		return &engine.StorageError{Op: config.ErrRosterWrite, Path: s.path, Err: err}
	}
	slog.DebugContext(ctx, config.MsgRosterSaved,
		config.LogKeyComponent, config.CompRoster,
		config.LogKeyTotal, len(records),
	)
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, config.DirPermUserRWX); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(config.FilePermShared); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
