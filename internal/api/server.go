package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/user/poe/internal/database"
	"github.com/user/poe/internal/store"
	"github.com/user/poe/pkg/release"
)

type Store interface {
	List(ctx context.Context, state string) ([]database.ReleaseRecord, error)
	GetRecord(ctx context.Context, id string) (*database.ReleaseRecord, error)
	GetHistory(ctx context.Context, releaseID string) ([]database.ReleaseHistory, error)
}

// Server exposes stored release requests read-only under /api/releases.
type Server struct {
	store Store
	mux   *http.ServeMux
}

func NewServer(st Store) *Server {
	s := &Server{
		store: st,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/releases", s.handleReleases)
	s.mux.HandleFunc("/api/releases/", s.handleRelease)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

type Release struct {
	ID          string                          `json:"id"`
	Repo        string                          `json:"repo"`
	Version     string                          `json:"version"`
	Channel     string                          `json:"channel"`
	HeadSHA     string                          `json:"head_sha"`
	State       string                          `json:"state"`
	Completed   bool                            `json:"completed"`
	Superseded  bool                            `json:"superseded,omitempty"`
	IssueNumber int                             `json:"issue_number,omitempty"`
	Attempts    int                             `json:"attempts"`
	Gates       map[string]release.GateResponse `json:"gates,omitempty"`
	CreatedAt   int64                           `json:"created_at"`
	UpdatedAt   int64                           `json:"updated_at"`
}

type HistoryEntry struct {
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.store.List(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	releases := make([]Release, 0, len(records))
	for i := range records {
		releases = append(releases, toRelease(&records[i]))
	}
	respondJSON(w, releases)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/releases/"), "/")
	id := parts[0]
	if id == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		s.getRelease(w, r, id)
	case len(parts) == 2 && parts[1] == "history":
		s.getHistory(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) getRelease(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.store.GetRecord(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, toRelease(record))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.store.GetRecord(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	history, err := s.store.GetHistory(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]HistoryEntry, 0, len(history))
	for _, h := range history {
		entry := HistoryEntry{Action: h.Action, Actor: h.Actor, CreatedAt: h.CreatedAt}
		if h.Details != "" {
			entry.Details = json.RawMessage(h.Details)
		}
		entries = append(entries, entry)
	}
	respondJSON(w, entries)
}

func toRelease(record *database.ReleaseRecord) Release {
	rel := Release{
		ID:          record.ID,
		Repo:        record.Owner + "/" + record.Repo,
		Version:     record.Version,
		Channel:     record.Channel,
		HeadSHA:     record.HeadSHA,
		State:       record.State,
		Completed:   record.Completed,
		Superseded:  record.Superseded,
		IssueNumber: record.IssueNumber,
		Attempts:    record.Attempts,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}

	results, err := record.GetGateResults()
	if err == nil && len(results) > 0 {
		rel.Gates = make(map[string]release.GateResponse, len(results))
		for id, res := range results {
			rel.Gates[id] = release.GateResponse{ID: id, OK: res.OK, Message: res.Message}
		}
	}
	return rel
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
