package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// maxBatchErrors caps the per-item reasons kept in one batch report.
const maxBatchErrors = 20

// ResyncOptions controls a resync run.
type ResyncOptions struct {
	// ReplaceAll drops and recreates the index before rebuilding it.
	ReplaceAll bool
}

// Resync rebuilds the index from the catalog export and blocks until the
// run ends. It returns ErrResyncInProgress when another run is active. On
// failure the partial report is returned alongside the error.
func (s *Syncer) Resync(ctx context.Context, opts ResyncOptions) (*domain.ResyncReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		ResyncRuns.WithLabelValues("rejected").Inc()
		return nil, domain.ErrResyncInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx, uuid.NewString(), opts)
}

// Start launches a resync in the background and returns its run id. ctx
// bounds the run, not the call.
func (s *Syncer) Start(ctx context.Context, opts ResyncOptions) (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		ResyncRuns.WithLabelValues("rejected").Inc()
		return "", domain.ErrResyncInProgress
	}
	runID := uuid.NewString()
	go func() {
		defer s.running.Store(false)
		_, _ = s.run(ctx, runID, opts)
	}()
	return runID, nil
}

func (s *Syncer) run(ctx context.Context, runID string, opts ResyncOptions) (*domain.ResyncReport, error) {
	ctx = logger.WithRunID(ctx, runID)
	log := logger.WithContext(ctx, s.logger)

	r := &resyncRun{
		syncer: s,
		log:    log,
		report: &domain.ResyncReport{
			RunID:      runID,
			ReplaceAll: opts.ReplaceAll,
			StartedAt:  s.now().UTC(),
			Batches:    []domain.BatchReport{},
		},
	}

	log.InfoContext(ctx, "resync started", slog.Bool("replace_all", opts.ReplaceAll))
	err := r.execute(ctx, opts)

	report := r.report
	report.Finalize(s.now().UTC())
	ResyncDuration.Observe(report.Duration.Seconds())
	ResyncDocuments.WithLabelValues("indexed").Add(float64(report.Succeeded))
	ResyncDocuments.WithLabelValues("failed").Add(float64(report.Failed))
	ResyncDocuments.WithLabelValues("removed").Add(float64(report.Removed))

	if r.mutated {
		s.onMutation(ctx)
	}

	attrs := []any{
		slog.Int("pages", report.Pages),
		slog.Int("total", report.Total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("removed", report.Removed),
		slog.Duration("duration", report.Duration),
	}
	switch {
	case err != nil:
		report.Error = err.Error()
		ResyncRuns.WithLabelValues("failed").Inc()
		log.ErrorContext(ctx, "resync aborted", append(attrs, slog.String("error", err.Error()))...)
	case report.Failed > 0:
		ResyncRuns.WithLabelValues("partial").Inc()
		log.WarnContext(ctx, "resync finished with failures", attrs...)
	default:
		ResyncRuns.WithLabelValues("success").Inc()
		log.InfoContext(ctx, "resync finished", attrs...)
	}

	s.setLast(report)
	return report, err
}

// resyncRun is the mutable state of one run.
type resyncRun struct {
	syncer  *Syncer
	log     *slog.Logger
	report  *domain.ResyncReport
	pending []domain.SearchDocument
	mutated bool
}

func (r *resyncRun) execute(ctx context.Context, opts ResyncOptions) error {
	s := r.syncer

	if err := s.catalog.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}

	if opts.ReplaceAll {
		if err := s.engine.Reset(ctx); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		r.mutated = true
	}

	var limiter *rate.Limiter
	if s.cfg.ExportPageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.cfg.ExportPageDelay), 1)
	}

	for page := 1; ; page++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("wait for export page %d: %w", page, err)
			}
		}

		res, err := s.catalog.ListPublished(ctx, page, s.cfg.ExportPageSize)
		if err != nil {
			r.flush(ctx)
			return fmt.Errorf("export page %d: %w", page, err)
		}
		if len(res.Items) == 0 {
			break
		}
		r.report.Pages++
		r.report.Total += len(res.Items)

		for i := range res.Items {
			r.add(ctx, &res.Items[i])
		}

		r.log.DebugContext(ctx, "export page synced",
			slog.Int("page", page),
			slog.Int("total_pages", res.TotalPages),
			slog.Int("items", len(res.Items)),
		)
		if page >= res.TotalPages {
			break
		}
	}

	r.flush(ctx)
	return nil
}

// add routes one exported product: searchable products are queued for the
// next bulk write, the rest are removed by id.
func (r *resyncRun) add(ctx context.Context, p *domain.CatalogProduct) {
	s := r.syncer
	if p.ID == "" {
		r.report.Failed++
		return
	}

	if !p.Searchable() {
		if err := s.engine.Delete(ctx, p.ID); err != nil {
			r.report.Failed++
			r.log.WarnContext(ctx, "failed to remove unsearchable product",
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		r.report.Removed++
		r.mutated = true
		return
	}

	r.pending = append(r.pending, domain.Project(*p))
	if len(r.pending) >= s.cfg.BulkBatchSize {
		r.flush(ctx)
	}
}

// flush bulk-writes the queued documents. A failed request counts every
// document in the batch as failed; the run goes on either way.
func (r *resyncRun) flush(ctx context.Context) {
	if len(r.pending) == 0 {
		return
	}
	docs := r.pending
	r.pending = nil

	batch := domain.BatchReport{Index: len(r.report.Batches)}
	res, err := r.syncer.engine.BulkUpsert(ctx, docs)
	switch {
	case err != nil:
		batch.Failed = len(docs)
		batch.Errors = []string{err.Error()}
		r.log.WarnContext(ctx, "bulk write failed",
			slog.Int("batch", batch.Index),
			slog.Int("documents", len(docs)),
			slog.String("error", err.Error()),
		)
	default:
		batch.Succeeded = res.Succeeded
		batch.Failed = len(res.Failed)
		for i, f := range res.Failed {
			if i == maxBatchErrors {
				batch.Errors = append(batch.Errors, fmt.Sprintf("... and %d more", len(res.Failed)-maxBatchErrors))
				break
			}
			batch.Errors = append(batch.Errors, f.ID+": "+f.Reason)
		}
		if batch.Failed > 0 {
			r.log.WarnContext(ctx, "bulk write rejected documents",
				slog.Int("batch", batch.Index),
				slog.Int("failed", batch.Failed),
			)
		}
	}

	if batch.Succeeded > 0 {
		r.mutated = true
	}
	r.report.Succeeded += batch.Succeeded
	r.report.Failed += batch.Failed
	r.report.Batches = append(r.report.Batches, batch)
}
