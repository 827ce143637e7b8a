// Package syncer delivers attendance submissions to the remote endpoint and
// parks them in the offline queue when the network is not available.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"

	"rollcall/internal/model"
	"rollcall/internal/netcheck"
)

// SuccessMarker must appear in the endpoint's response text for a delivery to count.
const SuccessMarker = "Success"

// ErrServerRejected is matched by *RejectionError.
var ErrServerRejected = errors.New("server rejected submission")

// ErrNotQueued is returned with Failed when a payload could not be delivered
// and could not be written to the offline queue either.
var ErrNotQueued = errors.New("submission could not be saved to the offline queue")

// RejectionError is returned when the endpoint answered without the success
// marker. The payload is not queued: the server may have applied part of it.
type RejectionError struct {
	Response string
}

func (e *RejectionError) Error() string {
	if e.Response == "" {
		return "server rejected submission: empty response"
	}
	return fmt.Sprintf("server rejected submission: %s", e.Response)
}

func (e *RejectionError) Unwrap() error { return ErrServerRejected }

// Outcome of a single Deliver call.
type Outcome int

const (
	Delivered Outcome = iota + 1
	Queued
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Remote sends one payload and returns the response text. An error means no
// response was received.
type Remote interface {
	Submit(ctx context.Context, p model.Payload) (string, error)
}

// QueueStore persists the offline queue. UpdateQueue must apply fn to the
// current queue and store the result without losing concurrent writers.
type QueueStore interface {
	LoadQueue(ctx context.Context) ([]model.Payload, error)
	UpdateQueue(ctx context.Context, fn func([]model.Payload) []model.Payload) error
}

// FlushReport summarizes one FlushQueue pass.
type FlushReport struct {
	Offline   bool `json:"offline"`
	Attempted int  `json:"attempted"`
	Delivered int  `json:"delivered"`
	Rejected  int  `json:"rejected"`
	Failed    int  `json:"failed"`
}

// Engine coordinates delivery and the offline queue. Calls on one engine are
// serialized; engines in other processes sharing the queue are kept apart by
// QueueStore.UpdateQueue.
type Engine struct {
	mu     sync.Mutex
	oracle netcheck.Oracle
	remote Remote
	queue  QueueStore

	Logger  *log.Logger
	Metrics *Metrics
	// OnQueued runs after a payload has been appended to the offline queue.
	OnQueued func(p model.Payload)
}

// New creates an engine.
func New(oracle netcheck.Oracle, remote Remote, queue QueueStore) *Engine {
	return &Engine{oracle: oracle, remote: remote, queue: queue, Logger: log.Default()}
}

// Deliver attempts one immediate delivery. Offline and transport failures
// queue the payload and report Queued; a response without the success marker
// reports Failed with a *RejectionError. When the queue cannot be written
// either, Deliver reports Failed with ErrNotQueued.
func (e *Engine) Deliver(ctx context.Context, p model.Payload) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.oracle.Connected(ctx) {
		return e.park(ctx, p, "offline")
	}

	text, err := e.remote.Submit(ctx, p)
	if err != nil {
		e.logf("delivery for %s-%s failed, queuing: %v", p.ClassName, p.Section, err)
		return e.park(ctx, p, "transport failure")
	}
	if strings.Contains(text, SuccessMarker) {
		e.Metrics.delivery(Delivered)
		return Delivered, nil
	}
	e.logf("endpoint rejected %s-%s: %q", p.ClassName, p.Section, text)
	e.Metrics.delivery(Failed)
	return Failed, &RejectionError{Response: text}
}

// FlushQueue sends every queued payload in enqueue order, one request each,
// and then removes the payloads it loaded from the queue. Payloads appended
// while the flush was running stay queued. It is a no-op while offline.
func (e *Engine) FlushQueue(ctx context.Context) (FlushReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report FlushReport
	if !e.oracle.Connected(ctx) {
		report.Offline = true
		return report, nil
	}

	queue, err := e.queue.LoadQueue(ctx)
	if err != nil {
		e.logf("load offline queue: %v", err)
	}
	if len(queue) == 0 {
		return report, nil
	}

	for _, p := range queue {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++
		text, err := e.remote.Submit(ctx, p)
		switch {
		case err != nil:
			report.Failed++
			e.Metrics.flushed("failed")
			e.logf("flush %s-%s %s: %v", p.ClassName, p.Section, p.Date, err)
		case strings.Contains(text, SuccessMarker):
			report.Delivered++
			e.Metrics.flushed("delivered")
		default:
			report.Rejected++
			e.Metrics.flushed("rejected")
			e.logf("flush %s-%s %s rejected: %q", p.ClassName, p.Section, p.Date, text)
		}
	}

	// TODO: write back the payloads that failed or were rejected instead of
	// dropping the whole batch once the retry semantics for rejected rows are settled.
	remaining := 0
	err = e.queue.UpdateQueue(ctx, func(current []model.Payload) []model.Payload {
		rest := dropSent(current, queue)
		remaining = len(rest)
		return rest
	})
	if err != nil {
		e.logf("clear offline queue: %v", err)
		return report, nil
	}
	e.Metrics.depth(remaining)
	return report, nil
}

// dropSent removes the leading entries of current that match sent in order.
// Appends only ever go to the tail, so sent is a prefix of current unless
// another flusher already removed it.
func dropSent(current, sent []model.Payload) []model.Payload {
	n := 0
	for n < len(sent) && n < len(current) && reflect.DeepEqual(current[n], sent[n]) {
		n++
	}
	return current[n:]
}

// Pending returns the queued payloads.
func (e *Engine) Pending(ctx context.Context) []model.Payload {
	e.mu.Lock()
	defer e.mu.Unlock()
	queue, err := e.queue.LoadQueue(ctx)
	if err != nil {
		e.logf("load offline queue: %v", err)
		return nil
	}
	e.Metrics.depth(len(queue))
	return queue
}

func (e *Engine) park(ctx context.Context, p model.Payload, reason string) (Outcome, error) {
	if !e.enqueue(ctx, p, reason) {
		e.Metrics.delivery(Failed)
		return Failed, ErrNotQueued
	}
	e.Metrics.delivery(Queued)
	return Queued, nil
}

// enqueue appends p to the offline queue and reports whether it was stored.
func (e *Engine) enqueue(ctx context.Context, p model.Payload, reason string) bool {
	depth := 0
	err := e.queue.UpdateQueue(ctx, func(queue []model.Payload) []model.Payload {
		depth = len(queue) + 1
		return append(queue, p)
	})
	if err != nil {
		e.logf("ERROR: %s-%s %s was not delivered and could not be queued (%s): %v", p.ClassName, p.Section, p.Date, reason, err)
		return false
	}
	e.Metrics.depth(depth)
	e.logf("queued %s-%s %s (%s), %d pending", p.ClassName, p.Section, p.Date, reason, depth)
	if e.OnQueued != nil {
		e.OnQueued(p)
	}
	return true
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger == nil {
		return
	}
	e.Logger.Printf(format, args...)
}
