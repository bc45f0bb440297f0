package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/ingest"
	"github.com/wedosoft/project-a/internal/jobs"
	"github.com/wedosoft/project-a/internal/metrics"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/tenant"
	"github.com/wedosoft/project-a/internal/types"
)

// ingestRequest is the body shared by the synchronous and job-based ingest
// endpoints. Dates are YYYY-MM-DD.
type ingestRequest struct {
	StartDate            string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate              string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DaysPerWindow        int    `json:"days_per_window,omitempty" validate:"omitempty,min=1,max=365"`
	MaxTickets           int    `json:"max_tickets,omitempty"`
	IncludeConversations bool   `json:"include_conversations,omitempty"`
	IncludeAttachments   bool   `json:"include_attachments,omitempty"`
	IncludeKB            bool   `json:"include_kb,omitempty"`
	ForceRebuild         bool   `json:"force_rebuild,omitempty"`
}

func (req ingestRequest) options(tc *tenant.Context, cfg ingestDefaults) (ingest.Options, error) {
	opts := ingest.Options{
		TenantID:             tc.TenantID,
		Platform:             tc.Platform,
		DaysPerWindow:        req.DaysPerWindow,
		MaxTickets:           req.MaxTickets,
		IncludeConversations: req.IncludeConversations,
		IncludeAttachments:   req.IncludeAttachments,
		IncludeKB:            req.IncludeKB,
		RawDataDir:           cfg.rawDataDir,
		ChunkSize:            cfg.chunkSize,
	}
	if opts.DaysPerWindow == 0 {
		opts.DaysPerWindow = cfg.daysPerWindow
	}

	parse := func(field, value string) (time.Time, error) {
		if value == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, apperr.Wrap(apperr.KindValidation, "server",
				fmt.Sprintf("%s must be YYYY-MM-DD", field), err)
		}
		return t, nil
	}
	var err error
	if opts.StartDate, err = parse("start_date", req.StartDate); err != nil {
		return opts, err
	}
	if opts.EndDate, err = parse("end_date", req.EndDate); err != nil {
		return opts, err
	}
	return opts, nil
}

// ingestDefaults adapts the ingest configuration for request option building.
type ingestDefaults struct {
	rawDataDir    string
	chunkSize     int
	daysPerWindow int
}

func (s *Server) requestConfig() ingestDefaults {
	return ingestDefaults{
		rawDataDir:    s.ingestCfg.RawDataDir,
		chunkSize:     s.ingestCfg.ChunkSize,
		daysPerWindow: s.ingestCfg.DaysPerChunk,
	}
}

// handleIngest runs a small synchronous pull. The engine refuses pulls over
// its immediate cap.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := req.options(tc, s.requestConfig())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.ingester.RunImmediate(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.TicketsIngested.Add(float64(report.TicketsIngested))
	s.writeJSON(w, http.StatusOK, report)
}

// handleCreateJob registers and starts an asynchronous ingestion job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := req.options(tc, s.requestConfig())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Progress rows carry the job id, which exists only after creation.
	var jobID string
	opts.OnProgress = func(step, totalSteps int, message string, percentage float64) {
		entry := &types.ProgressEntry{
			JobID:      jobID,
			TenantID:   tc.TenantID,
			Step:       step,
			TotalSteps: totalSteps,
			Message:    message,
			Percentage: percentage,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.store.LogProgress(context.Background(), entry); err != nil {
			s.log.Warn().Err(err).Str("job_id", jobID).Msg("progress log failed")
		}
	}

	job, err := s.jobs.CreateJob(opts, req.ForceRebuild)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jobID = job.ID

	// The job outlives the request; the manager owns its context.
	if err := s.jobs.StartJob(context.Background(), job.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.JobsStarted.WithLabelValues(tc.TenantID).Inc()

	started, err := s.jobs.GetJob(job.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		*jobs.Job
		CanPause bool `json:"can_pause"`
	}{started, true})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	status := jobs.Status(q.Get("status"))

	list := s.jobs.ListJobs(tc.TenantID, status, limit, offset)
	if list == nil {
		list = []*jobs.Job{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  list,
		"count": len(list),
	})
}

// jobForTenant loads a job and enforces that it belongs to the caller.
func (s *Server) jobForTenant(tc *tenant.Context, jobID string) (*jobs.Job, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tc.TenantID {
		return nil, apperr.New(apperr.KindForbidden, "server", "job belongs to another tenant")
	}
	return job, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	job, err := s.jobForTenant(tc, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type controlRequest struct {
	Action string `json:"action" validate:"required,oneof=pause resume cancel"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleControlJob(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	jobID := chi.URLParam(r, "id")

	var req controlRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.jobForTenant(tc, jobID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var err error
	switch req.Action {
	case "pause":
		err = s.jobs.PauseJob(jobID)
	case "resume":
		err = s.jobs.ResumeJob(jobID)
	case "cancel":
		err = s.jobs.CancelJob(jobID)
	default:
		err = apperr.New(apperr.KindValidation, "server",
			fmt.Sprintf("unknown action %q (want pause, resume, or cancel)", req.Action))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Reason != "" {
		s.log.Info().Str("job_id", jobID).Str("action", req.Action).Str("reason", req.Reason).
			Msg("job control")
	}
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	jobID := chi.URLParam(r, "job_id")

	entry, err := s.store.GetLatestProgress(r.Context(), tc.TenantID, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperr.Wrap(apperr.KindNotFound, "server", "no progress for job "+jobID, err)
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSyncSummaries(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())

	synced, err := s.ingester.SyncSummaries(r.Context(), tc.TenantID, tc.Platform)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"synced_summaries": synced})
}

type purgeRequest struct {
	Hard              bool   `json:"hard,omitempty"`
	CreateBackup      bool   `json:"create_backup,omitempty"`
	ConfirmationToken string `json:"confirmation_token" validate:"required"`
}

// handlePurge removes a tenant's data from the relational and vector stores.
// The confirmation token binds the operation to tenant, platform, and the
// current UTC day.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())

	var req purgeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	expected := fmt.Sprintf("DELETE_%s_%s_%s", tc.TenantID, tc.Platform,
		time.Now().UTC().Format("20060102"))
	if req.ConfirmationToken != expected {
		s.writeError(w, r, apperr.New(apperr.KindForbidden, "server", "invalid confirmation token"))
		return
	}

	backupFile := ""
	if req.CreateBackup && s.backupDir != "" {
		name := fmt.Sprintf("%s_%s_%s.json", tc.TenantID, tc.Platform,
			time.Now().UTC().Format("20060102T150405"))
		path := filepath.Join(s.backupDir, name)
		if err := s.backupVectors(r.Context(), path); err != nil {
			s.writeError(w, r, err)
			return
		}
		backupFile = path
	}

	deleted, err := s.purgeVectors(r.Context(), tc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.Clear(r.Context(), tc.TenantID, tc.Platform, req.Hard); err != nil {
		s.writeError(w, r, err)
		return
	}

	mode := "soft"
	if req.Hard {
		mode = "hard"
	}
	s.log.Info().Str("tenant_id", tc.TenantID).Str("mode", mode).
		Int("vectors_deleted", deleted).Msg("tenant data purged")
	s.writeJSON(w, http.StatusOK, map[string]any{
		"purged":          true,
		"mode":            mode,
		"vectors_deleted": deleted,
		"backup_file":     backupFile,
	})
}

func (s *Server) backupVectors(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = s.vectors.Backup(ctx, f)
	return err
}

// purgeVectors deletes every point whose original id appears in the
// tenant's relational rows.
func (s *Server) purgeVectors(ctx context.Context, tc *tenant.Context) (int, error) {
	const page = 500
	deleted := 0
	for _, objType := range []types.ObjectType{
		types.ObjectTypeTicket, types.ObjectTypeConversation,
		types.ObjectTypeArticle, types.ObjectTypeAttachment,
	} {
		for offset := 0; ; offset += page {
			objs, err := s.store.GetByType(ctx, tc.TenantID, tc.Platform, objType, page, offset)
			if err != nil {
				return deleted, err
			}
			if len(objs) == 0 {
				break
			}
			ids := make([]string, len(objs))
			for i, obj := range objs {
				ids[i] = obj.OriginalID
			}
			if err := s.vectors.Delete(ctx, tc.TenantID, tc.Platform, ids); err != nil {
				return deleted, err
			}
			deleted += len(ids)
			if len(objs) < page {
				break
			}
		}
	}
	return deleted, nil
}
