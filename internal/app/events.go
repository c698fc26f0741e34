/**
 * @description
 * This file contains the event dispatcher that delivers transaction-completed
 * events to RabbitMQ with at-least-once semantics. A committed transfer must
 * never be blocked on the broker, so publishes are attempted briefly in the
 * request path and then handed to a background worker that retries with
 * backoff. Events that survive every retry are dropped with an alert log;
 * queued events do not survive a process crash.
 *
 * @dependencies
 * - context, encoding/json, log, sync, time: Standard Go libraries.
 * - internal/domain: The event payload.
 */

package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/microbank/transfer-service/internal/domain"
)

const (
	eventsExchange                 = "microbank.events"
	routingKeyTransactionCompleted = "transaction.completed"
)

// Publisher abstracts the message broker producer. The producer owns JSON
// serialization of the payload.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// EventDispatcher publishes transaction events, falling back to a background
// retry queue when the broker is unavailable.
type EventDispatcher struct {
	publisher      Publisher
	queue          chan domain.TransactionEvent
	publishTimeout time.Duration
	retryBackoff   time.Duration
	maxRetries     int

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewEventDispatcher creates a dispatcher with a bounded retry queue.
func NewEventDispatcher(publisher Publisher, queueSize int, publishTimeout, retryBackoff time.Duration, maxRetries int) *EventDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	if retryBackoff <= 0 {
		retryBackoff = 500 * time.Millisecond
	}
	if maxRetries <= 0 {
		maxRetries = 8
	}
	return &EventDispatcher{
		publisher:      publisher,
		queue:          make(chan domain.TransactionEvent, queueSize),
		publishTimeout: publishTimeout,
		retryBackoff:   retryBackoff,
		maxRetries:     maxRetries,
		done:           make(chan struct{}),
	}
}

// Start launches the background retry worker.
func (d *EventDispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains nothing further and waits for the worker to exit. Events still
// queued are flushed with one final attempt each.
func (d *EventDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// PublishOrQueue attempts one bounded publish in the caller's path and hands
// the event to the retry worker on failure. It never returns an error: the
// transfer that produced the event is already committed.
func (d *EventDispatcher) PublishOrQueue(ctx context.Context, event domain.TransactionEvent) {
	if err := d.publishOnce(ctx, event); err == nil {
		log.Printf("level=info component=events msg=\"event published\" transaction_id=%s routing_key=%s", event.TransactionID, routingKeyTransactionCompleted)
		return
	}

	select {
	case d.queue <- event:
		log.Printf("level=warn component=events msg=\"event queued for retry\" transaction_id=%s", event.TransactionID)
	default:
		log.Printf("level=error component=events alert=true msg=\"event dropped; retry queue full\" transaction_id=%s", event.TransactionID)
	}
}

func (d *EventDispatcher) publishOnce(ctx context.Context, event domain.TransactionEvent) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.publishTimeout)
	defer cancel()
	return d.publisher.Publish(pctx, eventsExchange, routingKeyTransactionCompleted, event)
}

func (d *EventDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.retryPublish(event)
		case <-d.done:
			d.flush()
			return
		}
	}
}

// retryPublish drives one queued event through the retry budget.
func (d *EventDispatcher) retryPublish(event domain.TransactionEvent) {
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if err := d.publishOnce(context.Background(), event); err == nil {
			log.Printf("level=info component=events msg=\"queued event published\" transaction_id=%s attempt=%d", event.TransactionID, attempt+1)
			return
		}
		delay := backoffDelay(d.retryBackoff, attempt)
		select {
		case <-time.After(delay):
		case <-d.done:
			if err := d.publishOnce(context.Background(), event); err == nil {
				return
			}
			log.Printf("level=error component=events alert=true msg=\"event lost at shutdown\" transaction_id=%s", event.TransactionID)
			return
		}
	}
	log.Printf("level=error component=events alert=true msg=\"event dropped after retries\" transaction_id=%s retries=%d", event.TransactionID, d.maxRetries)
}

// flush makes a single final attempt for each event still queued at shutdown.
func (d *EventDispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			if err := d.publishOnce(context.Background(), event); err != nil {
				log.Printf("level=error component=events alert=true msg=\"event lost at shutdown\" transaction_id=%s err=%v", event.TransactionID, err)
			}
		default:
			return
		}
	}
}
