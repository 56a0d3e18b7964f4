package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/alphaledger/internal/modules/sizing"
	"github.com/aristath/alphaledger/internal/pipeline"
	"github.com/aristath/alphaledger/internal/scheduler"
)

// Handlers implements the ops API endpoints.
type Handlers struct {
	log         zerolog.Logger
	startupTime time.Time
	snapshots   *pipeline.SnapshotRepository
	exclusions  *sizing.ExclusionList
	passJob     scheduler.Job
	sched       *scheduler.Scheduler
}

// NewHandlers creates the ops API handlers.
func NewHandlers(
	log zerolog.Logger,
	snapshots *pipeline.SnapshotRepository,
	exclusions *sizing.ExclusionList,
	passJob scheduler.Job,
	sched *scheduler.Scheduler,
) *Handlers {
	return &Handlers{
		log:         log.With().Str("component", "handlers").Logger(),
		startupTime: time.Now(),
		snapshots:   snapshots,
		exclusions:  exclusions,
		passJob:     passJob,
		sched:       sched,
	}
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startupTime).String(),
	})
}

// HandleSystemStatus reports host resource usage alongside uptime.
func (h *Handlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	// Short sample window so the endpoint stays responsive.
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memUsed := 0.0
	if memStat, err := mem.VirtualMemory(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		memUsed = memStat.UsedPercent
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":           time.Since(h.startupTime).String(),
		"cpu_percent":      cpuAvg,
		"mem_used_percent": memUsed,
	})
}

// HandleLatestPass returns the most recent completed pass, or 404 when
// no pass has run yet.
func (h *Handlers) HandleLatestPass(w http.ResponseWriter, r *http.Request) {
	result, err := h.snapshots.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest pass")
		h.respondError(w, http.StatusInternalServerError, "failed to load latest pass")
		return
	}
	if result == nil {
		h.respondError(w, http.StatusNotFound, "no pass has completed yet")
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// HandleGetPass returns one pass by ID.
func (h *Handlers) HandleGetPass(w http.ResponseWriter, r *http.Request) {
	passID := chi.URLParam(r, "passID")
	result, err := h.snapshots.Get(passID)
	if err != nil {
		h.log.Error().Err(err).Str("pass_id", passID).Msg("Failed to load pass")
		h.respondError(w, http.StatusInternalServerError, "failed to load pass")
		return
	}
	if result == nil {
		h.respondError(w, http.StatusNotFound, "unknown pass id")
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// HandleRunPass triggers a pipeline pass outside its schedule.
func (h *Handlers) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	if h.passJob == nil || h.sched == nil {
		h.respondError(w, http.StatusServiceUnavailable, "pass job not configured")
		return
	}
	if err := h.sched.RunNow(h.passJob); err != nil {
		h.log.Error().Err(err).Msg("Manually triggered pass failed")
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "completed"})
}

// HandleExclusions lists the currently blocked instruments.
func (h *Handlers) HandleExclusions(w http.ResponseWriter, r *http.Request) {
	blocked, err := h.exclusions.Active()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list exclusions")
		h.respondError(w, http.StatusInternalServerError, "failed to list exclusions")
		return
	}

	type entry struct {
		InstrumentID string    `json:"instrument_id"`
		Reason       string    `json:"reason"`
		BlockedAt    time.Time `json:"blocked_at"`
		ExpiresAt    time.Time `json:"expires_at"`
	}
	entries := make([]entry, 0, len(blocked))
	for _, b := range blocked {
		entries = append(entries, entry{
			InstrumentID: b.InstrumentID,
			Reason:       b.Reason,
			BlockedAt:    b.BlockedAt,
			ExpiresAt:    b.ExpiresAt,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"exclusions": entries})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
