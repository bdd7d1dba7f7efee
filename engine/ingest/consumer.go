package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/pkg/metrics"
	"github.com/WessleyAI/manualkg/pkg/natsutil"
	"github.com/WessleyAI/manualkg/pkg/resilience"
	"github.com/nats-io/nats.go"
)

const (
	// DefaultSubject is the NATS subject for incoming manuals.
	DefaultSubject = "manualkg.ingest"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// RetryHeader carries the number of failed attempts of a message.
	RetryHeader = "X-Retry-Count"
)

// DLQSubject returns the dead letter subject of subject.
func DLQSubject(subject string) string { return subject + ".dlq" }

// consumer handles the messages of one subscription.
type consumer struct {
	nc       *nats.Conn
	subject  string
	deps     Deps
	pipeline func(context.Context, manual.Document) (Outcome, error)
	log      *slog.Logger
	duration *metrics.Histogram
}

// StartConsumer subscribes to subject (DefaultSubject when empty) and runs
// every manual through the ingestion pipeline. Failed manuals are
// re-published with an incremented retry header and moved to the DLQ after
// MaxRetries; malformed and permanently invalid manuals go to the DLQ at
// once.
func StartConsumer(nc *nats.Conn, subject string, deps Deps) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	pipeline := NewPipeline(deps)
	if deps.Limiter != nil {
		pipeline = resilience.LimiterStage(deps.Limiter, pipeline)
	}
	c := &consumer{
		nc:      nc,
		subject: subject,
		deps:    deps,
		pipeline: func(ctx context.Context, doc manual.Document) (Outcome, error) {
			return pipeline(ctx, doc).Unwrap()
		},
		log: deps.logger(),
	}
	if deps.Metrics != nil {
		c.duration = deps.Metrics.Histogram("manualkg_ingest_duration_seconds", "Time to ingest one manual", nil)
	}
	return nc.Subscribe(subject, c.handle)
}

func (c *consumer) handle(msg *nats.Msg) {
	defer ack(msg)
	ctx := natsutil.Extract(context.Background(), msg)
	retries := retryCount(msg)

	doc, err := manual.DecodeDocument(bytes.NewReader(msg.Data))
	if err != nil {
		c.log.Error("ingest: decode failed", "error", err)
		c.deadLetter(ctx, "", msg.Data, err, retries)
		return
	}
	partNo := doc.ID()

	if !doc.Force && c.alreadyIngested(ctx, partNo) {
		c.log.Info("ingest: skipping duplicate", "part_no", partNo)
		c.count("skipped")
		return
	}

	start := time.Now()
	out, err := c.pipeline(ctx, doc)
	if c.duration != nil {
		c.duration.Since(start)
	}
	if err == nil {
		c.log.Info("ingest: success", "part_no", out.PartNo, "triplets", out.Triplets, "sections", out.Sections)
		c.count("ok")
		return
	}

	retries++
	c.log.Error("ingest: pipeline failed", "error", err, "part_no", partNo, "retry", retries)
	if permanent(err) || retries >= MaxRetries {
		c.deadLetter(ctx, partNo, msg.Data, err, retries)
		return
	}

	retryMsg := nats.NewMsg(c.subject)
	retryMsg.Data = msg.Data
	retryMsg.Header.Set(RetryHeader, strconv.Itoa(retries))
	natsutil.Inject(ctx, retryMsg)
	if err := c.nc.PublishMsg(retryMsg); err != nil {
		c.log.Error("ingest: retry publish failed", "error", err)
		return
	}
	c.count("retry")
}

// alreadyIngested reports whether the registry holds partNo as ingested. A
// failed lookup is logged and treated as not ingested.
func (c *consumer) alreadyIngested(ctx context.Context, partNo string) bool {
	if c.deps.Store == nil {
		return false
	}
	entry, found, err := c.deps.Store.GetManualEntry(ctx, partNo)
	if err != nil {
		c.log.Warn("ingest: dedup check failed", "part_no", partNo, "error", err)
		return false
	}
	return found && entry.Status == graph.ManualIngested
}

// deadLetter publishes the message to the DLQ and marks the manual failed.
func (c *consumer) deadLetter(ctx context.Context, partNo string, data []byte, cause error, retries int) {
	dlq := dlqMessage{PartNo: partNo, Error: cause.Error(), Retries: retries}
	if json.Valid(data) {
		dlq.Document = data
	} else {
		dlq.Document, _ = json.Marshal(string(data))
	}
	payload, _ := json.Marshal(dlq)
	msg := nats.NewMsg(DLQSubject(c.subject))
	msg.Data = payload
	natsutil.Inject(ctx, msg)
	if err := c.nc.PublishMsg(msg); err != nil {
		c.log.Error("ingest: DLQ publish failed", "error", err)
	}
	c.count("dlq")

	if partNo == "" || c.deps.Store == nil {
		return
	}
	entry := graph.ManualEntry{
		PartNo:     partNo,
		Status:     graph.ManualFailed,
		Error:      cause.Error(),
		IngestedAt: time.Now().UTC(),
	}
	if err := c.deps.Store.SaveManualEntry(ctx, entry); err != nil {
		c.log.Warn("ingest: registry update failed", "part_no", partNo, "error", err)
	}
}

func (c *consumer) count(result string) {
	if c.deps.Metrics == nil {
		return
	}
	c.deps.Metrics.Counter(metrics.WithLabels("manualkg_ingest_total", "result", result),
		"Manuals handled by the ingest consumer").Inc()
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrManualShape) ||
		errors.Is(err, domain.ErrExtractionStatus) ||
		errors.Is(err, domain.ErrUnknownProduct)
}

// retryable reports whether an upsert failure is worth another attempt.
func retryable(err error) bool {
	return !permanent(err) && !errors.Is(err, context.Canceled)
}

func retryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, err := strconv.Atoi(msg.Header.Get(RetryHeader))
	if err != nil {
		return 0
	}
	return n
}

// ack acknowledges JetStream deliveries.
func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}

// Publish sends doc to subject (DefaultSubject when empty) with the trace
// context of ctx.
func Publish(ctx context.Context, nc *nats.Conn, subject string, doc manual.Document) error {
	if subject == "" {
		subject = DefaultSubject
	}
	if err := natsutil.Publish(ctx, nc, subject, doc); err != nil {
		return fmt.Errorf("ingest: publish %s: %w", doc.ID(), err)
	}
	return nil
}
