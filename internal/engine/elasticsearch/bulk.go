package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
)

// esBulkResponse is the structure used to decode bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkUpsert indexes docs with the bulk NDJSON API and itemizes the
// outcome. Rejected documents are reported in the result; only a failure of
// the whole request returns an error.
func (e *Engine) BulkUpsert(ctx context.Context, docs []domain.SearchDocument) (*engine.BulkResult, error) {
	result := &engine.BulkResult{}
	if len(docs) == 0 {
		return result, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": e.indexName,
				"_id":    docs[i].ID,
			},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(refreshPolicy),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch bulk", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	for _, item := range bulkResp.Items {
		for _, op := range item {
			switch {
			case op.Error != nil:
				result.Failed = append(result.Failed, engine.BulkFailure{
					ID:     op.ID,
					Reason: op.Error.Type + ": " + op.Error.Reason,
				})
			case op.Status >= 300:
				result.Failed = append(result.Failed, engine.BulkFailure{
					ID:     op.ID,
					Reason: fmt.Sprintf("status %d", op.Status),
				})
			default:
				result.Succeeded++
			}
		}
	}

	e.logger.Info("bulk indexed documents",
		slog.Int("count", len(docs)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}
