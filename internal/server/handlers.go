package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/engine"
	"github.com/nakiaasuryanto/bday-bot/internal/roster"
	"github.com/nakiaasuryanto/bday-bot/internal/session"
)

// response is the envelope of every dashboard action.
type response struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Groups  []session.Group     `json:"groups,omitempty"`
	Summary *scanSummary        `json:"summary,omitempty"`
	Import  *roster.ImportStats `json:"import,omitempty"`
}

type scanSummary struct {
	DayKey  string `json:"dayKey"`
	Matches int    `json:"matches"`
	Sent    int    `json:"sent"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

type logsResponse struct {
	Logs string `json:"logs"`
}

type testMessageRequest struct {
	Name string `json:"name"`
}

type previewRequest struct {
	Index *int `json:"index"`
}

// -----------------------------------------------------------------------------
// Roster
// -----------------------------------------------------------------------------

func (s *Server) handleListBirthdays(w http.ResponseWriter, r *http.Request) {
	records, err := s.Roster.Records(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []roster.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAddBirthday(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.decodeRecord(w, r)
	if !ok {
		return
	}
	if _, verr := roster.Validate(-1, rec); verr != nil {
		s.fail(w, http.StatusBadRequest, verr.Error())
		return
	}
	if err := s.Roster.Add(r.Context(), rec); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.rosterChanged(r)
	s.ok(w, config.RespBirthdayAdded)
}

func (s *Server) handleUpdateBirthday(w http.ResponseWriter, r *http.Request) {
	index, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	rec, ok := s.decodeRecord(w, r)
	if !ok {
		return
	}
	if _, verr := roster.Validate(index, rec); verr != nil {
		s.fail(w, http.StatusBadRequest, verr.Error())
		return
	}
	if err := s.Roster.Replace(r.Context(), index, rec); err != nil {
		s.rosterError(w, err)
		return
	}
	s.rosterChanged(r)
	s.ok(w, config.RespBirthdayUpdated)
}

func (s *Server) handleDeleteBirthday(w http.ResponseWriter, r *http.Request) {
	index, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	if err := s.Roster.Remove(r.Context(), index); err != nil {
		s.rosterError(w, err)
		return
	}
	s.rosterChanged(r)
	s.ok(w, config.RespBirthdayDeleted)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	target := roster.Target{
		GroupID:   r.URL.Query().Get(config.QueryGroupID),
		GroupName: r.URL.Query().Get(config.QueryGroupName),
		Role:      r.URL.Query().Get(config.QueryRole),
	}
	if target.GroupID == "" || target.GroupName == "" {
		s.fail(w, http.StatusBadRequest, fmt.Sprintf(config.RespImportFailed,
			config.QueryGroupID+" and "+config.QueryGroupName+" are required"))
		return
	}

	body := http.MaxBytesReader(w, r.Body, config.MaxHTTPResponseSize)
	stats, err := s.Roster.Import(r.Context(), body, target)
	if err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Sprintf(config.RespImportFailed, err))
		return
	}
	s.rosterChanged(r)
	s.writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: fmt.Sprintf(config.RespImportDone, stats.Imported, stats.Skipped+stats.Duplicate),
		Import:  &stats,
	})
}

// -----------------------------------------------------------------------------
// Ledger & Diagnostics
// -----------------------------------------------------------------------------

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	lines, err := s.Ledger.Tail(config.LogTailLines)
	if err != nil || len(lines) == 0 {
		if err != nil {
			slog.Warn(config.ErrLedgerRead, config.LogKeyComponent, config.CompServer, config.LogKeyError, err)
		}
		s.writeJSON(w, http.StatusOK, logsResponse{Logs: config.RespNoLogs})
		return
	}
	s.writeJSON(w, http.StatusOK, logsResponse{Logs: strings.Join(lines, "\n")})
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request) {
	if err := s.Ledger.Clear(r.Context()); err != nil {
		s.fail(w, http.StatusInternalServerError, fmt.Sprintf(config.RespLogClearFailed, err))
		return
	}
	s.ok(w, config.RespLogCleared)
}

// handleTestMessage composes the greeting for the first record whose name
// contains the requested one, or for the first record. Nothing is sent.
func (s *Server) handleTestMessage(w http.ResponseWriter, r *http.Request) {
	var req testMessageRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)).Decode(&req); err != nil {
			s.fail(w, http.StatusBadRequest, config.HTTPMsgBadRequest)
			return
		}
	}

	records, err := s.Roster.Records(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(records) == 0 {
		s.fail(w, http.StatusOK, config.RespNoBirthdays)
		return
	}

	index := 0
	if req.Name != "" {
		index = -1
		needle := strings.ToLower(req.Name)
		for i, rec := range records {
			if strings.Contains(strings.ToLower(rec.String(config.FieldName)), needle) {
				index = i
				break
			}
		}
		if index < 0 {
			s.fail(w, http.StatusOK, fmt.Sprintf(config.RespNameNotFound, req.Name))
			return
		}
	}

	entry, text, err := s.compose(index, records[index])
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.ok(w, fmt.Sprintf(config.RespTestMessage, entry.Name, entry.GroupName, text))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)).Decode(&req); err != nil || req.Index == nil {
		s.fail(w, http.StatusBadRequest, config.HTTPMsgBadIndex)
		return
	}

	records, err := s.Roster.Records(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	index := *req.Index
	if index < 0 || index >= len(records) {
		s.fail(w, http.StatusNotFound, config.RespBirthdayMissing)
		return
	}

	_, text, err := s.compose(index, records[index])
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.ok(w, text)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	// A dropped dashboard connection must not abort a half-finished scan.
	sum, err := s.Scanner.Run(context.WithoutCancel(r.Context()), config.TriggerManual)
	if errors.Is(err, engine.ErrScanInProgress) {
		s.fail(w, http.StatusConflict, fmt.Sprintf(config.RespScanFailed, err))
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, fmt.Sprintf(config.RespScanFailed, err))
		return
	}
	s.writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: fmt.Sprintf(config.RespScanDone, sum.DayKey, sum.Matches, sum.Sent, sum.Skipped, sum.Failed),
		Summary: &scanSummary{
			DayKey:  sum.DayKey,
			Matches: sum.Matches,
			Sent:    sum.Sent,
			Skipped: sum.Skipped,
			Failed:  sum.Failed,
		},
	})
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Session.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.Session.Disconnect(r.Context())
	s.ok(w, config.RespDisconnected)
}

func (s *Server) handleForceRestart(w http.ResponseWriter, r *http.Request) {
	s.Session.Restart(r.Context())
	s.ok(w, config.RespRestarting)
}

// handleReconnect retries a session left idle after a failed first attempt,
// for example once the app has been installed.
func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	s.Session.Reconnect()
	s.ok(w, config.RespReconnecting)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.Session.ListGroups(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, engine.ErrNotConnected) {
			status = http.StatusServiceUnavailable
		}
		s.fail(w, status, fmt.Sprintf(config.RespGroupsFailed, err))
		return
	}
	s.writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: fmt.Sprintf(config.RespGroupsFetched, len(groups)),
		Groups:  groups,
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Server) compose(index int, rec roster.Record) (engine.Entry, string, error) {
	entry, verr := roster.Validate(index, rec)
	if verr != nil {
		return entry, "", verr
	}
	birth, err := entry.Birth()
	if err != nil {
		return entry, "", err
	}
	text, err := s.Composer.Compose(entry, engine.Age(birth, s.Clock.Today().Time))
	return entry, text, err
}

func (s *Server) decodeRecord(w http.ResponseWriter, r *http.Request) (roster.Record, bool) {
	var rec roster.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)).Decode(&rec); err != nil {
		s.fail(w, http.StatusBadRequest, config.HTTPMsgBadRequest)
		return rec, false
	}
	return rec, true
}

func (s *Server) pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue(config.PathParamIndex))
	if err != nil {
		s.fail(w, http.StatusBadRequest, config.HTTPMsgBadIndex)
		return 0, false
	}
	return index, true
}

func (s *Server) rosterError(w http.ResponseWriter, err error) {
	if errors.Is(err, roster.ErrIndexOutOfRange) {
		s.fail(w, http.StatusNotFound, config.RespBirthdayMissing)
		return
	}
	s.fail(w, http.StatusInternalServerError, err.Error())
}

// rosterChanged keeps the ICS feed in step with dashboard edits.
func (s *Server) rosterChanged(r *http.Request) {
	if err := s.RefreshCalendar(r.Context()); err != nil {
		slog.Warn(config.MsgCalendarFailed, config.LogKeyComponent, config.CompServer, config.LogKeyError, err)
	}
}

func (s *Server) ok(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusOK, response{Success: true, Message: msg})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, response{Success: false, Message: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}
