package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/catalogsearch/internal/domain"
	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// Kafka topics carrying product domain events from the catalog.
var (
	TopicProductCreated = pkgkafka.Topic("product", "created")
	TopicProductUpdated = pkgkafka.Topic("product", "updated")
	TopicProductDeleted = pkgkafka.Topic("product", "deleted")
)

// Topics lists every topic the search service consumes.
func Topics() []string {
	return []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted}
}

// ProductDeletedData is the payload of a product.deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// Applier mirrors one catalog mutation into the index.
type Applier interface {
	Apply(ctx context.Context, action domain.Action, product *domain.CatalogProduct) (domain.Outcome, error)
}

// Consumer turns product events into index writes. Unlike the webhook path
// a failed write is returned so the Kafka consumer retries it and finally
// dead-letters it.
type Consumer struct {
	applier      Applier
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewConsumer creates a new product event consumer.
func NewConsumer(applier Applier, writeTimeout time.Duration, logger *slog.Logger) *Consumer {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Consumer{
		applier:      applier,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	switch event.EventType {
	case TopicProductCreated:
		return c.handleUpsert(ctx, event, domain.ActionCreated)
	case TopicProductUpdated:
		return c.handleUpsert(ctx, event, domain.ActionUpdated)
	case TopicProductDeleted:
		return c.handleDeleted(ctx, event)
	default:
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleUpsert indexes or removes the product carried by a created or
// updated event, depending on whether it is still searchable.
func (c *Consumer) handleUpsert(ctx context.Context, event *pkgkafka.Event, action domain.Action) error {
	var product domain.CatalogProduct
	if err := event.UnmarshalData(&product); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	if product.ID == "" {
		product.ID = event.AggregateID
	}
	return c.apply(ctx, event, action, &product)
}

// handleDeleted removes a deleted product from the index.
func (c *Consumer) handleDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if len(event.Data) > 0 {
		if err := event.UnmarshalData(&data); err != nil {
			return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
		}
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}
	return c.apply(ctx, event, domain.ActionDeleted, &domain.CatalogProduct{ID: data.ID})
}

func (c *Consumer) apply(ctx context.Context, event *pkgkafka.Event, action domain.Action, product *domain.CatalogProduct) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	outcome, err := c.applier.Apply(ctx, action, product)
	if err != nil {
		return fmt.Errorf("apply %s event %s: %w", action, event.EventID, err)
	}

	logger.WithContext(ctx, c.logger).InfoContext(ctx, "applied product event",
		slog.String("event_type", event.EventType),
		slog.String("product_id", product.ID),
		slog.String("outcome", string(outcome)),
	)
	return nil
}
