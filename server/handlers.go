package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/pegabatch/pipeline"
	"github.com/teranos/pegabatch/tracker"
	"github.com/teranos/pegabatch/version"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	_ = writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: info.Version,
		Commit:  info.Short(),
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	CooldownActive bool           `json:"cooldown_active"`
	CooldownUntil  *time.Time     `json:"cooldown_until,omitempty"`
	Jobs           map[string]int `json:"jobs"`
	CacheEntries   *int           `json:"cache_entries,omitempty"`
	CacheExpired   *int           `json:"cache_expired,omitempty"`
	LastPass       *LastPass      `json:"last_pass,omitempty"`
}

// LastPass summarizes the most recent scheduling pass.
type LastPass struct {
	At      time.Time        `json:"at"`
	Summary pipeline.Summary `json:"summary"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Jobs: make(map[string]int, len(tracker.Statuses))}

	until, err := s.opts.Cooldowns.Cooldown(ctx)
	if err != nil {
		s.handleError(w, err, "failed to read cooldown")
		return
	}
	if until != nil && until.After(s.now()) {
		resp.CooldownActive = true
		resp.CooldownUntil = until
	}

	counts, err := s.opts.Jobs.CountByStatus(ctx)
	if err != nil {
		s.handleError(w, err, "failed to count jobs")
		return
	}
	for st, n := range counts {
		resp.Jobs[string(st)] = n
	}

	if s.opts.Cache != nil {
		stats, err := s.opts.Cache.Stats(ctx)
		if err != nil {
			s.handleError(w, err, "failed to read cache stats")
			return
		}
		resp.CacheEntries = &stats.Entries
		resp.CacheExpired = &stats.Expired
	}

	if s.opts.LastPass != nil {
		if sum, at := s.opts.LastPass(); !at.IsZero() {
			resp.LastPass = &LastPass{At: at, Summary: sum}
		}
	}

	_ = writeJSON(w, http.StatusOK, resp)
}

// JobResponse is the body of GET /jobs/{id}.
type JobResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	OutputFile   string     `json:"output_file,omitempty"`
	Error        string     `json:"error,omitempty"`
	AnalysisDate *time.Time `json:"analysis_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// handleJob omits the owner's email and the input path.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := s.opts.Jobs.Get(r.Context(), id)
	if err != nil {
		s.handleError(w, err, "failed to load job")
		return
	}
	_ = writeJSON(w, http.StatusOK, JobResponse{
		ID:           req.ID,
		Status:       string(req.Status),
		Progress:     req.Progress,
		OutputFile:   req.OutputFile,
		Error:        req.Error,
		AnalysisDate: req.AnalysisDate,
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
	})
}
