package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/fragrance-scraper/internal/database"
	"github.com/maltedev/fragrance-scraper/internal/models"
)

type EventType string

const (
	// EventTypePerfumeIngested is published for every newly saved perfume.
	EventTypePerfumeIngested EventType = "PERFUME_INGESTED"

	aggregatePerfume = "perfume"
	eventSource      = "scraper"
)

type PerfumeIngestedPayload struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Timestamp time.Time    `json:"timestamp"`
	PerfumeID int64        `json:"perfume_id"`
	BrandID   int64        `json:"brand_id"`
	BrandName string       `json:"brand_name"`
	Name      string       `json:"name"`
	SourceURL string       `json:"source_url"`
	Accords   []string     `json:"accords"`
	Notes     models.Notes `json:"notes"`
	JobID     string       `json:"job_id,omitempty"`
	Source    string       `json:"source"`
}

// NewPerfumeIngestedPayload builds the event body for a saved perfume.
func NewPerfumeIngestedPayload(p *models.Perfume, jobID string) *PerfumeIngestedPayload {
	accords := make([]string, 0, len(p.Accords))
	for _, a := range p.Accords {
		accords = append(accords, a.Name)
	}
	return &PerfumeIngestedPayload{
		PerfumeID: p.ID,
		BrandID:   p.BrandID,
		BrandName: p.BrandName,
		Name:      p.Name,
		SourceURL: p.SourceURL,
		Accords:   accords,
		Notes:     p.Notes,
		JobID:     jobID,
	}
}

// Publisher writes events through the transactional outbox.
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	stream string
	logger *slog.Logger
}

func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) PublishPerfumeIngested(ctx context.Context, perfume *models.Perfume, jobID string) error {
	payload := NewPerfumeIngestedPayload(perfume, jobID)
	payload.EventID = uuid.NewString()
	payload.EventType = string(EventTypePerfumeIngested)
	payload.Timestamp = time.Now()
	payload.Source = eventSource

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: aggregatePerfume,
		AggregateID:   strconv.FormatInt(perfume.ID, 10),
		EventType:     string(EventTypePerfumeIngested),
		Payload:       data,
		TargetStream:  p.stream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"perfume_id", perfume.ID,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}

// LogPublisher only logs events. It backs the file gateway, which has no
// outbox table.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "event_publisher")}
}

func (p *LogPublisher) PublishPerfumeIngested(_ context.Context, perfume *models.Perfume, jobID string) error {
	p.logger.Info("perfume ingested",
		"type", string(EventTypePerfumeIngested),
		"perfume_id", perfume.ID,
		"url", perfume.SourceURL,
		"job_id", jobID)
	return nil
}
