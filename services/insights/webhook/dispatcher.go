// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aeopulse/aeopulse/services/insights/project"
)

var tracer = otel.Tracer("aeopulse.insights.webhook")

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome",
	}, []string{"outcome"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "insights_webhook_delivery_duration_seconds",
		Help:    "Webhook delivery round-trip time",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)

// DefaultDeliveryTimeout bounds each individual delivery attempt.
const DefaultDeliveryTimeout = 5 * time.Second

// Dispatcher fans project-domain events out to webhook subscribers.
//
// Dispatch never blocks its caller and never propagates delivery failures;
// outcomes are recorded on the subscriptions themselves through one batched
// project update per cycle.
//
// Thread Safety: Dispatcher is safe for concurrent use.
type Dispatcher struct {
	store   project.Store
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithDeliveryTimeout overrides the per-delivery timeout.
func WithDeliveryTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = t
	}
}

// WithLogger sets the logger for contained failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(store project.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		client:  &http.Client{},
		timeout: DefaultDeliveryTimeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch notifies all matching enabled subscriptions of an event.
//
// Description:
//
//	Fire-and-forget: the work runs on a detached goroutine and this call
//	returns immediately. With no enabled-and-matching subscriptions it is
//	a no-op. Deliveries fan out concurrently, each bounded by its own
//	timeout; after all settle, the subscription list is written back in a
//	single batched update touching only the subscriptions attempted this
//	cycle. All internal errors are contained and logged.
//
// Thread Safety: Safe for concurrent use.
func (d *Dispatcher) Dispatch(proj ProjectContext, eventType string, data map[string]any) {
	var targets []int
	for i, sub := range proj.Subscriptions {
		if sub.Enabled && Matches(sub, eventType) {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("webhook dispatch panicked",
					slog.String("project_id", proj.ID),
					slog.String("event", eventType),
					slog.Any("panic", r),
				)
			}
		}()
		d.run(context.Background(), proj, eventType, data, targets)
	}()
}

// Wait blocks until all in-flight dispatch cycles settle. Intended for
// tests and graceful shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, proj ProjectContext, eventType string, data map[string]any, targets []int) {
	ctx, span := tracer.Start(ctx, "webhook.Dispatch")
	span.SetAttributes(
		attribute.String("project_id", proj.ID),
		attribute.String("event", eventType),
		attribute.Int("targets", len(targets)),
	)
	defer span.End()

	// All-settled fan-out: every delivery runs to completion, failures
	// included, before the batched status write.
	results := make([]DeliveryResult, len(targets))
	var wg sync.WaitGroup
	for i, idx := range targets {
		sub := proj.Subscriptions[idx]
		wg.Add(1)
		go func(slot int, sub Subscription) {
			defer wg.Done()
			payload := Render(sub.Format, eventType, data, proj)
			results[slot] = d.deliver(ctx, sub.URL, payload)
		}(i, sub)
	}
	wg.Wait()

	subs := make([]Subscription, len(proj.Subscriptions))
	copy(subs, proj.Subscriptions)
	triggeredAt := d.now()
	for i, idx := range targets {
		subs[idx].LastTriggeredAt = triggeredAt
		if results[i].OK {
			subs[idx].LastStatus = StatusSuccess
			subs[idx].LastError = ""
		} else {
			subs[idx].LastStatus = StatusError
			subs[idx].LastError = results[i].Error
		}
	}

	if err := d.store.UpdateProject(ctx, proj.ID, map[string]any{
		"webhook_subscriptions": subs,
	}); err != nil {
		d.logger.Warn("webhook status write failed",
			slog.String("project_id", proj.ID),
			slog.String("error", err.Error()),
		)
	}
}

// deliver POSTs one payload with an independent timeout.
//
// Timeouts are recorded distinctly from other network failures so the
// subscription's status line can say which happened.
func (d *Dispatcher) deliver(ctx context.Context, url string, payload any) DeliveryResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return d.failed(DeliveryResult{Error: fmt.Sprintf("encode payload: %v", err)})
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return d.failed(DeliveryResult{Error: fmt.Sprintf("build request: %v", err)})
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return d.failed(DeliveryResult{
				Error: fmt.Sprintf("delivery timed out after %s", d.timeout),
			})
		}
		return d.failed(DeliveryResult{Error: fmt.Sprintf("delivery failed: %v", err)})
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return d.failed(DeliveryResult{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("endpoint returned %d", resp.StatusCode),
		})
	}

	deliveriesTotal.WithLabelValues("success").Inc()
	return DeliveryResult{OK: true, StatusCode: resp.StatusCode}
}

func (d *Dispatcher) failed(r DeliveryResult) DeliveryResult {
	deliveriesTotal.WithLabelValues("error").Inc()
	return r
}

// TestDelivery sends a canned test event through the production delivery
// path and returns the raw result for UI feedback.
func (d *Dispatcher) TestDelivery(ctx context.Context, url string, format Format) DeliveryResult {
	proj := ProjectContext{
		ID:   "test-project",
		Name: "Test Project",
		URL:  "https://example.com",
	}
	data := map[string]any{"task": "sample task"}
	payload := Render(format, "test", data, proj)
	return d.deliver(ctx, url, payload)
}
