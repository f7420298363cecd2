package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/stan.go"

	apperrors "pacer/internal/errors"
	"pacer/internal/logger"
	"pacer/internal/metrics"
	"pacer/internal/models"
)

// Ingester stores feed records
type Ingester interface {
	UpsertEvent(ctx context.Context, e *models.Event) error
	UpsertOrder(ctx context.Context, o *models.Order) error
	UpsertAdSpend(ctx context.Context, a *models.AdSpend) error
}

// Rebuilder runs the batch pipeline
type Rebuilder interface {
	Rebuild(ctx context.Context) (*models.RebuildResult, error)
}

type Handlers struct {
	ingest  Ingester
	rebuild Rebuilder
	timeout time.Duration
}

func NewHandlers(ingest Ingester, rebuild Rebuilder) *Handlers {
	return &Handlers{
		ingest:  ingest,
		rebuild: rebuild,
		timeout: 30 * time.Second,
	}
}

// errMalformed marks payloads that can never be processed
var errMalformed = errors.New("malformed payload")

func (h *Handlers) HandleEvent(m *stan.Msg) {
	h.handle(m, models.SubjectIngestEvent, h.ProcessEvent)
}

func (h *Handlers) HandleOrder(m *stan.Msg) {
	h.handle(m, models.SubjectIngestOrder, h.ProcessOrder)
}

func (h *Handlers) HandleAdSpend(m *stan.Msg) {
	h.handle(m, models.SubjectIngestAdSpend, h.ProcessAdSpend)
}

func (h *Handlers) HandleCompleted(m *stan.Msg) {
	h.handle(m, models.SubjectIngestCompleted, h.ProcessCompleted)
}

// handle acks processed and unprocessable messages. Anything else is left
// unacked for redelivery.
func (h *Handlers) handle(m *stan.Msg, subject string, process func(context.Context, []byte) error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	outcome := Outcome(process(ctx, m.Data), subject, m.Sequence)
	metrics.Engine().CountIngest(subject, outcome)
	if outcome == metrics.IngestFailed {
		return
	}
	if err := m.Ack(); err != nil {
		logger.WithFields("subject", subject, "sequence", m.Sequence).Error("Failed to ack message", "error", err)
	}
}

// Outcome classifies a processing error and logs it
func Outcome(err error, subject string, sequence uint64) string {
	switch {
	case err == nil:
		return metrics.IngestOK
	case errors.Is(err, errMalformed), errors.Is(err, apperrors.ErrInvalidInput):
		logger.WithFields("subject", subject, "sequence", sequence).Warn("Dropping invalid message", "error", err)
		return metrics.IngestInvalid
	default:
		logger.WithFields("subject", subject, "sequence", sequence).Error("Failed to process message", "error", err)
		return metrics.IngestFailed
	}
}

func (h *Handlers) ProcessEvent(ctx context.Context, data []byte) error {
	var e models.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return h.ingest.UpsertEvent(ctx, &e)
}

// ProcessOrder fails for orders whose event is not stored yet, so that they
// are redelivered once the event arrives.
func (h *Handlers) ProcessOrder(ctx context.Context, data []byte) error {
	var o models.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return h.ingest.UpsertOrder(ctx, &o)
}

func (h *Handlers) ProcessAdSpend(ctx context.Context, data []byte) error {
	var a models.AdSpend
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return h.ingest.UpsertAdSpend(ctx, &a)
}

// ProcessCompleted rebuilds derived data after a feed finished a pass
func (h *Handlers) ProcessCompleted(ctx context.Context, data []byte) error {
	var evt models.IngestCompletedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	slog.Info("Feed pass completed", "source", evt.Source, "events", evt.Events, "orders", evt.Orders)

	// a rebuild can outlast the per-message timeout
	res, err := h.rebuild.Rebuild(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("failed to rebuild after %s pass: %w", evt.Source, err)
	}
	slog.Info("Rebuild after feed pass", "source", evt.Source,
		"snapshots", res.Snapshots, "curves", res.Curves, "customers", res.Customers)
	return nil
}
