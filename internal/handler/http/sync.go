package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/internal/syncer"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/logger"
	"github.com/utafrali/catalogsearch/pkg/validator"
)

// maxNotificationBytes bounds a webhook body.
const maxNotificationBytes = 1 << 20

// SyncHandler handles catalog change notifications and resync triggers.
type SyncHandler struct {
	service *service.SearchService
	syncer  *syncer.Syncer
	// background bounds resync runs started over HTTP; they outlive the
	// request that triggered them.
	background context.Context
	logger     *slog.Logger
}

// NewSyncHandler creates a new sync HTTP handler.
func NewSyncHandler(svc *service.SearchService, idx *syncer.Syncer, background context.Context, logger *slog.Logger) *SyncHandler {
	if background == nil {
		background = context.Background()
	}
	return &SyncHandler{
		service:    svc,
		syncer:     idx,
		background: background,
		logger:     logger,
	}
}

// decodeJSON reads the body into dst without validating it; the service
// validates notifications so the missing-id case gets its own error code.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &validator.DecodeError{Err: errors.New("request body is empty")}
		}
		return &validator.DecodeError{Err: err}
	}
	return nil
}

// ResyncAccepted is the body of a 202 answer to a resync trigger.
type ResyncAccepted struct {
	RunID      string `json:"run_id"`
	ReplaceAll bool   `json:"replace_all"`
	Status     string `json:"status"`
}

// ProductWebhook handles POST /api/v1/search/webhooks/products
func (h *SyncHandler) ProductWebhook(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangeNotification
	if err := decodeJSON(w, r, &req, maxNotificationBytes); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	ack, err := h.service.Notify(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, ack)
}

// Resync handles POST /api/v1/search/resync
func (h *SyncHandler) Resync(w http.ResponseWriter, r *http.Request) {
	replaceAll := false
	if raw := r.URL.Query().Get("replace_all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("replace_all must be true or false"), h.logger)
			return
		}
		replaceAll = v
	}

	ctx := h.background
	if id := logger.CorrelationIDFromContext(r.Context()); id != "" {
		ctx = logger.WithCorrelationID(ctx, id)
	}

	runID, err := h.syncer.Start(ctx, syncer.ResyncOptions{ReplaceAll: replaceAll})
	if err != nil {
		if errors.Is(err, domain.ErrResyncInProgress) {
			httputil.WriteError(w, r, apperrors.Conflict(err.Error()), h.logger)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusAccepted, ResyncAccepted{
		RunID:      runID,
		ReplaceAll: replaceAll,
		Status:     "started",
	})
}

// LastResync handles GET /api/v1/search/resync/last
func (h *SyncHandler) LastResync(w http.ResponseWriter, r *http.Request) {
	report := h.syncer.LastReport()
	if report == nil {
		httputil.WriteError(w, r, &apperrors.AppError{
			Code:    "NOT_FOUND",
			Message: "no resync has run yet",
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}, h.logger)
		return
	}

	w.Header().Set("X-Resync-Running", strconv.FormatBool(h.syncer.Running()))
	httputil.WriteData(w, http.StatusOK, report)
}
