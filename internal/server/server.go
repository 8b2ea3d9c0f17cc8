// Package server exposes the operator dashboard API, the birthday ICS feed
// and a health probe.
package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
	"github.com/nakiaasuryanto/bday-bot/internal/roster"
	"github.com/nakiaasuryanto/bday-bot/internal/session"
)

// RosterStore is the roster view the dashboard edits.
type RosterStore interface {
	Records(ctx context.Context) ([]roster.Record, error)
	Active(ctx context.Context) ([]engine.Entry, error)
	Add(ctx context.Context, records ...roster.Record) error
	Replace(ctx context.Context, index int, r roster.Record) error
	Remove(ctx context.Context, index int) error
	Import(ctx context.Context, r io.Reader, target roster.Target) (roster.ImportStats, error)
}

// DeliveryLog is the audit trail shown on the dashboard.
type DeliveryLog interface {
	Tail(n int) ([]string, error)
	Clear(ctx context.Context) error
}

// Session is the messaging session control surface.
type Session interface {
	Status() session.Status
	Disconnect(ctx context.Context)
	Restart(ctx context.Context)
	Reconnect()
	ListGroups(ctx context.Context) ([]session.Group, error)
}

// Scanner runs a birthday scan on demand.
type Scanner interface {
	Run(ctx context.Context, trigger string) (engine.Summary, error)
}

// cacheItem stores the rendered calendar and its metadata for HTTP caching.
type cacheItem struct {
	data         []byte
	etag         string
	lastModified string // RFC1123 format required by HTTP headers
}

// Server is the dashboard HTTP server.
type Server struct {
	Addr     string
	Roster   RosterStore
	Ledger   DeliveryLog
	Session  Session
	Scanner  Scanner
	Composer *engine.Composer
	Clock    *engine.CivilClock

	// cache uses atomic.Pointer for lock-free reads of the ICS feed.
	cache atomic.Pointer[cacheItem]
}

// Handler returns the routed dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(config.RouteBirthdays, s.handleListBirthdays)
	mux.HandleFunc(config.RouteBirthdayAdd, s.handleAddBirthday)
	mux.HandleFunc(config.RouteBirthdayUpdate, s.handleUpdateBirthday)
	mux.HandleFunc(config.RouteBirthdayDelete, s.handleDeleteBirthday)
	mux.HandleFunc(config.RouteLogs, s.handleLogs)
	mux.HandleFunc(config.RouteClearLog, s.handleClearLog)
	mux.HandleFunc(config.RouteTestMessage, s.handleTestMessage)
	mux.HandleFunc(config.RoutePreview, s.handlePreview)
	mux.HandleFunc(config.RouteCheck, s.handleCheck)
	mux.HandleFunc(config.RouteImport, s.handleImport)
	mux.HandleFunc(config.RouteDisconnect, s.handleDisconnect)
	mux.HandleFunc(config.RouteForceRestart, s.handleForceRestart)
	mux.HandleFunc(config.RouteReconnect, s.handleReconnect)
	mux.HandleFunc(config.RouteGroups, s.handleGroups)
	mux.HandleFunc(config.RouteStatus, s.handleStatus)
	mux.HandleFunc(config.RouteCalendar, s.handleCalendarRequest)
	mux.HandleFunc(config.RouteHealth, s.handleHealth)
	return mux
}

// Start initializes the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyAddr, s.Addr,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// RefreshCalendar rebuilds the ICS feed from the current roster.
func (s *Server) RefreshCalendar(ctx context.Context) error {
	entries, err := s.Roster.Active(ctx)
	if err != nil {
		return err
	}
	data, err := engine.BuildCalendar(entries, s.Clock.Now(), s.Composer.Summary)
	if err != nil {
		return err
	}
	s.Update(data)
	return nil
}

// Update atomically replaces the served calendar.
func (s *Server) Update(data []byte) {
	hash := sha256.Sum256(data)
	etag := fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:]))

	item := &cacheItem{
		data:         data,
		etag:         etag,
		lastModified: s.Clock.Now().UTC().Format(http.TimeFormat),
	}
	s.cache.Store(item)

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, etag,
	)
}

// handleCalendarRequest serves the ICS content with HTTP caching support.
func (s *Server) handleCalendarRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set(config.HeaderAllow, config.AllowedMethods)
		http.Error(w, config.HTTPMsgMethodNotAll, http.StatusMethodNotAllowed)
		return
	}

	item := s.cache.Load()
	if item == nil {
		w.Header().Set(config.HeaderRetryAfter, config.RetryAfterSeconds)
		http.Error(w, config.HTTPMsgInitializing, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set(config.HeaderContentType, config.MimeTextCalendar)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	w.Header().Set(config.HeaderETag, item.etag)
	w.Header().Set(config.HeaderLastModified, item.lastModified)

	if match := r.Header.Get(config.HeaderIfNoneMatch); match == item.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if since := r.Header.Get(config.HeaderIfModifiedSince); since != "" {
		if clientTime, err := time.Parse(http.TimeFormat, since); err == nil {
			if serverTime, err := time.Parse(http.TimeFormat, item.lastModified); err == nil {
				if !serverTime.After(clientTime) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}
	}

	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
			slog.Error(config.ErrWriteResp,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyError, err,
			)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(config.HeaderContentType, config.MimeTextPlain)
	_, _ = io.WriteString(w, config.RespHealthy)
}
