package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payout_deliveries_total",
		Help: "Payout event delivery attempts by outcome",
	},
	[]string{"outcome"},
)

// Sink delivers a payout instruction to the downstream integration
type Sink interface {
	Deliver(ctx context.Context, p Payload) error
}

// WebhookSink POSTs payloads as JSON to a fixed URL
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink posting to url
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

// Deliver sends the payload; any non-2xx answer is a failed attempt
func (s *WebhookSink) Deliver(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payout payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.EventID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post payout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payout webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes payloads to the process log. Used when no webhook is configured.
type LogSink struct{}

// Deliver logs the payout instruction and never fails
func (LogSink) Deliver(ctx context.Context, p Payload) error {
	log.Printf("payout: transaction=%d worker=%d amount=%d %s", p.TransactionID, p.WorkerID, p.WorkerAmount, p.Currency)
	return nil
}

// Dispatcher relays pending outbox events to a Sink
type Dispatcher struct {
	source    Source
	sink      Sink
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewDispatcher creates a new payout dispatcher
func NewDispatcher(source Source, sink Sink, interval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		source:    source,
		sink:      sink,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Run polls the outbox until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("payout dispatcher: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch and returns how many events were dispatched.
// A failed delivery is recorded on the event and does not stop the batch.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.source.ListPending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, e := range events {
		if err := d.sink.Deliver(ctx, e.Payload()); err != nil {
			deliveriesTotal.WithLabelValues("failed").Inc()
			if markErr := d.source.MarkAttemptFailed(ctx, e.ID, err.Error()); markErr != nil {
				return dispatched, markErr
			}
			continue
		}
		if err := d.source.MarkDispatched(ctx, e.ID, d.now().UTC()); err != nil {
			return dispatched, err
		}
		deliveriesTotal.WithLabelValues("dispatched").Inc()
		dispatched++
	}
	return dispatched, nil
}
