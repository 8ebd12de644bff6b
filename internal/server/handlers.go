package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/meshline/syncd/pkg/merge"
	"github.com/meshline/syncd/pkg/project"
	"github.com/meshline/syncd/pkg/types"
)

// eventsEnvelope is the wire shape of both the append request and all event
// responses.
type eventsEnvelope struct {
	Events []*types.Event `json:"events"`
}

// handleAppendEvents accepts a batch of client events, stores them
// idempotently, and returns them with their server-assigned seq. Accepted
// events are broadcast to realtime watchers.
func (s *Server) handleAppendEvents(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	var req eventsEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, types.ErrValidation)
		return
	}
	if len(req.Events) == 0 {
		s.writeError(w, http.StatusBadRequest, types.ErrValidation)
		return
	}
	for _, ev := range req.Events {
		// Seq is server-owned; whatever the client sent is discarded.
		ev.Seq = 0
	}

	stored, err := s.backend.AppendEvents(req.Events, caller.owner)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.hub.Publish(caller.owner, stored)
	s.writeJSON(w, http.StatusOK, eventsEnvelope{Events: stored})
}

// handleQueryEvents returns events with seq > since in ascending order,
// limited and clamped. Session callers see only their own events.
func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	since, err := queryInt64(r, "since", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, types.ErrValidation)
		return
	}
	limit, err := queryInt64(r, "limit", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, types.ErrValidation)
		return
	}

	events, err := s.backend.QueryEvents(since, int(limit), caller.owner)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	s.writeJSON(w, http.StatusOK, eventsEnvelope{Events: events})
}

// handlePurgeEvents truncates the log. Admin only.
func (s *Server) handlePurgeEvents(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if !caller.admin {
		s.writeError(w, http.StatusForbidden, types.ErrAuth)
		return
	}
	if err := s.backend.PurgeEvents(); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleState projects the caller's visible event log into the materialized
// item list — the canonical read model.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	var (
		events []*types.Event
		err    error
	)
	if caller.admin {
		events, err = s.backend.AllEvents()
	} else {
		events, err = s.ownerEvents(caller.owner)
	}
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	items := project.Project(events)
	if items == nil {
		items = []*types.Item{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// statePage is the page size used when walking a session's log for the
// state projection.
const statePage = 1000

// ownerEvents reads the session's full log page by page. A single query is
// capped by the storage layer, and the projection needs every event: a
// truncated log would drop items and fold stale field values.
func (s *Server) ownerEvents(owner string) ([]*types.Event, error) {
	var out []*types.Event
	var since int64
	for {
		page, err := s.backend.QueryEvents(since, statePage, owner)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < statePage {
			return out, nil
		}
		since = page[len(page)-1].Seq
	}
}

// Legacy field-merge item endpoints. These operate on server-held rows with
// per-field shadow timestamps, independent of the event log.

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.backend.ListItems()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if items == nil {
		items = []*types.Item{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var it types.Item
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
		s.writeError(w, http.StatusBadRequest, types.ErrValidation)
		return
	}
	if it.Type == "" {
		it.Type = types.ItemTypeTodo
	}
	if !types.ValidItemType(it.Type) {
		s.writeError(w, http.StatusBadRequest, types.ErrValidation)
		return
	}
	if it.ID == "" {
		it.ID = newID()
	}

	now := s.now()
	if it.CreatedAt == 0 {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	if err := s.backend.UpsertItem(&it); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &it)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.backend.GetItem(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

// handleMergeItem applies the one-shot per-field LWW merge of the submitted
// client item against the server-held row, persists the winner, and returns
// it.
func (s *Server) handleMergeItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var clientItem types.Item
	if err := json.NewDecoder(r.Body).Decode(&clientItem); err != nil {
		s.writeError(w, http.StatusBadRequest, types.ErrValidation)
		return
	}
	clientItem.ID = id

	serverItem, err := s.backend.GetItem(id)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		s.writeError(w, statusFor(err), err)
		return
	}

	merged := merge.Items(&clientItem, serverItem, s.now())
	if err := s.backend.UpsertItem(merged); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteItem(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt64 parses an optional integer query parameter.
func queryInt64(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// newID generates a UUID v7 identifier, falling back to v4 if the clock
// source fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
