package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

var (
	// ErrStorage matches every *StorageError through errors.Is.
	ErrStorage = errors.New(config.ErrStorage)
	// ErrNotConnected is reported when no open messaging session is available.
	ErrNotConnected = errors.New(config.ErrNotConnected)
	// ErrScanInProgress is returned when a scan is triggered while another runs.
	ErrScanInProgress = errors.New(config.ErrScanInProgress)
)

// ValidationError describes a roster record that was excluded from the active
// roster. It is a diagnostic, never a reason to fail a load.
type ValidationError struct {
	Index  int
	Name   string
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s #%d (%s): %s", config.ErrValidation, e.Index, e.Name, strings.Join(e.Fields, ", "))
}

// StorageError wraps a failure to read or write the roster or the ledger.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", config.ErrStorage, e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// SendError is a platform or network failure while delivering one greeting.
type SendError struct {
	Name    string
	GroupID string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s to %s for %s: %v", config.ErrSend, e.GroupID, e.Name, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
