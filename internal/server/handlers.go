package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/pipeline"
)

// sourceParam resolves the source for a request, falling back to the
// server's configured default.
func (s *Server) sourceParam(r *http.Request) string {
	if source := r.URL.Query().Get("source"); source != "" {
		return source
	}
	return s.source
}

// handleListJobs returns stored records, filterable by tag, department and
// active state.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filters := db.JobFilters{
		Source:     s.sourceParam(r),
		Tag:        r.URL.Query().Get("tag"),
		Department: r.URL.Query().Get("department"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		filters.Limit = limit
	}

	records, err := s.store.ListJobs(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if records == nil {
		records = []db.JobRecord{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":  records,
		"count": len(records),
	})
}

// handleGetJob returns one record by its upstream source id.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source_id")

	record, err := s.store.GetJobBySourceID(r.Context(), s.sourceParam(r), sourceID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if record == nil {
		s.errorResponse(w, http.StatusNotFound, (&ErrJobNotFound{SourceID: sourceID}).Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, record)
}

// handleListJobDetections returns the append-only detection log for one record.
func (s *Server) handleListJobDetections(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source_id")

	detections, err := s.store.ListDetectionsByJob(r.Context(), sourceID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if detections == nil {
		detections = []db.Detection{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"job_id":     sourceID,
		"detections": detections,
		"count":      len(detections),
	})
}

// handleStatsCounts returns store counts for the source.
func (s *Server) handleStatsCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountJobs(r.Context(), s.sourceParam(r))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, counts)
}

// handleStatsSkills returns the live per-tag ranking over active records.
func (s *Server) handleStatsSkills(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	counts, err := s.store.SkillCounts(r.Context(), s.sourceParam(r), limit)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if counts == nil {
		counts = []db.SkillCount{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"skills": counts,
		"count":  len(counts),
	})
}

// handleStatsLatest returns the most recent persisted snapshot, verbatim as
// the stats stage stored it.
func (s *Server) handleStatsLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.LatestStatsSnapshot(r.Context(), s.sourceParam(r))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if snap == nil {
		s.errorResponse(w, http.StatusNotFound, "no statistics snapshot generated yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Payload)
}

// handleListMarkers returns the staleness markers for every stage.
func (s *Server) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := s.store.ListRunMarkers(r.Context(), s.sourceParam(r))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if markers == nil {
		markers = []db.RunMarker{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"markers": markers})
}

// runRequest is the body of POST /pipeline/run.
type runRequest struct {
	ForceCollect bool `json:"force_collect"`
	ForceExtract bool `json:"force_extract"`
	ForceStats   bool `json:"force_stats"`
	MaxRecords   int  `json:"max_records"`
}

// handleRunPipeline triggers one pipeline run. Requires authentication.
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "pipeline runner not configured")
		return
	}

	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.MaxRecords < 0 {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "max_records", Message: "must be non-negative"}).Error())
		return
	}

	opts := pipeline.Options{
		MaxRecords:   req.MaxRecords,
		ForceCollect: req.ForceCollect,
		ForceExtract: req.ForceExtract,
		ForceStats:   req.ForceStats,
	}

	started := time.Now()
	report, err := s.runner.Run(r.Context(), opts)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if report.Failed() {
		// Partial failure: the report carries per-stage detail.
		status = http.StatusMultiStatus
	}
	s.jsonResponse(w, status, map[string]any{
		"report":      report,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}
