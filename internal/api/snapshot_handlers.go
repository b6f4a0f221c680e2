package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/server"
	"github.com/JakeFAU/crawlscope/internal/storage/postgres"
)

const (
	defaultSnapshotLimit = 100
	maxSnapshotLimit     = 1000
	snapshotTimeout      = 3 * time.Second
)

// SnapshotLister reads persisted server records.
type SnapshotLister interface {
	List(ctx context.Context) ([]server.Snapshot, error)
	Load(ctx context.Context, key string) (server.Snapshot, error)
}

// SnapshotHandler exposes read-only endpoints over checkpointed servers.
type SnapshotHandler struct {
	store   SnapshotLister
	timeout time.Duration
	logger  *zap.Logger
}

// NewSnapshotHandler wires the store and logger.
func NewSnapshotHandler(store SnapshotLister, logger *zap.Logger) *SnapshotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotHandler{
		store:   store,
		timeout: snapshotTimeout,
		logger:  logger,
	}
}

// ListSnapshots handles GET /v1/snapshots?valid=&limit=&offset=. It
// returns {"snapshots": [...], "total": n} on success, 400 for invalid
// query parameters, 503 without a store, or 500 if the store fails.
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSnapshotLimit, maxSnapshotLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var valid *bool
	if v := strings.TrimSpace(r.URL.Query().Get("valid")); v != "" {
		b, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid valid filter")
			return
		}
		valid = &b
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snaps, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error("list snapshots failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	filtered := make([]snapshotDTO, 0, len(snaps))
	for _, s := range snaps {
		if valid != nil && s.ValidRobots != *valid {
			continue
		}
		filtered = append(filtered, toSnapshotDTO(s))
	}
	total := len(filtered)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": filtered[start:end],
		"total":     total,
	})
}

// GetSnapshot handles GET /v1/snapshots/{key}. It returns {"snapshot":
// {...}} on success, 404 when the store has no such server, 503 without a
// store, or 500 otherwise.
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}
	key := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "key")))
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.logger.Error("load snapshot failed", zap.String("server", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": toSnapshotDTO(snap)})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type snapshotDTO struct {
	Key              string     `json:"key"`
	RobotsPolicy     string     `json:"robots_policy,omitempty"`
	RobotsFetched    *time.Time `json:"robots_fetched,omitempty"`
	ValidRobots      bool       `json:"valid_robots"`
	ConnectionErrors int        `json:"consecutive_connection_errors"`
	Scheduled        int64      `json:"total_scheduled"`
	Succeeded        int64      `json:"fetch_successes"`
	Failed           int64      `json:"fetch_failures"`
	RobotsDenials    int64      `json:"robots_denials"`
	Remaining        int64      `json:"remaining"`
}

func toSnapshotDTO(s server.Snapshot) snapshotDTO {
	dto := snapshotDTO{
		Key:              s.Key,
		ValidRobots:      s.ValidRobots,
		ConnectionErrors: s.ConsecutiveConnectionErrors,
		Scheduled:        s.Counts.TotalScheduled,
		Succeeded:        s.Counts.FetchSuccesses,
		Failed:           s.Counts.FetchFailures,
		RobotsDenials:    s.Counts.RobotsDenials,
		Remaining:        s.Counts.Remaining(),
	}
	if s.Robots != nil {
		dto.RobotsPolicy = s.Robots.Kind.String()
	}
	if !s.RobotsFetched.IsZero() {
		t := s.RobotsFetched.UTC()
		dto.RobotsFetched = &t
	}
	return dto
}
