package queueing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/godbolt/ce-router/internal/metrics"
	"github.com/godbolt/ce-router/pkg/logging"
)

var tracer = otel.Tracer("cerouter.internal.queueing")

// sender publishes a serialised message to a specific queue URL.
type sender interface {
	Send(ctx context.Context, queueURL, body, dedupID string) error
}

// overflowStore is the subset of objectstore.Store the submitter uses to
// archive oversized messages.
type overflowStore interface {
	PutJSON(ctx context.Context, key string, data []byte, metadata map[string]string) error
}

// Submitter builds and publishes compile/cmake queue messages, offloading
// oversized payloads to object storage first.
type Submitter struct {
	queue   sender
	objects overflowStore
	logger  *logging.Logger
	m       *metrics.Metrics

	maxMessageSize int
	overflowBucket string
	overflowPrefix string
	environment    string

	nowFunc func() time.Time
}

// NewSubmitter builds a Submitter.
func NewSubmitter(queue sender, objects overflowStore, maxMessageSize int, overflowBucket, overflowPrefix, environment string, logger *logging.Logger, m *metrics.Metrics) *Submitter {
	if queue == nil {
		panic("queueing: sender cannot be nil")
	}
	if objects == nil {
		panic("queueing: overflow store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Submitter{
		queue:          queue,
		objects:        objects,
		logger:         logger,
		m:              m,
		maxMessageSize: maxMessageSize,
		overflowBucket: overflowBucket,
		overflowPrefix: overflowPrefix,
		environment:    environment,
		nowFunc:        time.Now,
	}
}

// Submit builds the queue message for one request, overflows it to
// object storage if it exceeds the configured size limit, and publishes
// it to queueURL with FIFO deduplication keyed on the correlation id.
func (s *Submitter) Submit(ctx context.Context, queueURL, correlationID, compilerID string, isCMake bool, headers, query map[string]string, rawBody []byte, contentType string) error {
	ctx, span := tracer.Start(ctx, "queueing.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("cerouter.guid", correlationID),
		attribute.String("cerouter.compiler_id", compilerID),
		attribute.String("cerouter.queue_url", queueURL),
	)

	parsedBody := ParseBody(contentType, rawBody)
	msg := Build(correlationID, compilerID, isCMake, headers, query, parsedBody)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		s.recordOutcome("error")
		return fmt.Errorf("queueing: marshal message: %w", err)
	}

	body := data
	if len(data) > s.maxMessageSize {
		s.m.QueueOverflow()
		key := OverflowKey(s.overflowPrefix, s.environment, correlationID, s.nowFunc())
		if err := s.objects.PutJSON(ctx, key, data, map[string]string{
			"guid":         correlationID,
			"compilerId":   compilerID,
			"environment":  s.environment,
			"originalSize": fmt.Sprintf("%d", len(data)),
		}); err != nil {
			span.RecordError(err)
			s.recordOutcome("error")
			return fmt.Errorf("queueing: overflow upload: %w", err)
		}

		envelope := NewEnvelope(correlationID, compilerID, s.overflowBucket, key, len(data), s.nowFunc())
		body, err = envelope.MarshalBody()
		if err != nil {
			span.RecordError(err)
			s.recordOutcome("error")
			return fmt.Errorf("queueing: marshal overflow envelope: %w", err)
		}
		s.logger.Info("queueing: message overflowed to object store", "guid", correlationID, "compiler_id", compilerID, "original_size", len(data), "s3_key", key)
	}

	if err := s.queue.Send(ctx, queueURL, string(body), correlationID); err != nil {
		span.RecordError(err)
		s.recordOutcome("error")
		return fmt.Errorf("queueing: publish: %w", err)
	}

	s.recordOutcome("success")
	return nil
}

func (s *Submitter) recordOutcome(outcome string) {
	if s.m != nil {
		s.m.QueueSubmission(outcome)
	}
}
