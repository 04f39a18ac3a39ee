// Package queue_publisher publishes seat transition events to RabbitMQ.
// Publishing happens on a background goroutine so reconciliation never
// waits on the broker; errors are logged and the event is dropped.
package queue_publisher

import (
    "context"
    "encoding/json"
    "sync/atomic"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    q "github.com/iliyamo/seat-occupancy/internal/queue"
    "github.com/iliyamo/seat-occupancy/internal/occupancy"
)

// publishFunc sends one encoded event.  Swapped out in tests.
type publishFunc func(ctx context.Context, body []byte) error

// TransitionPublisher is an occupancy.Listener that forwards every seat
// transition to the occupancy.transitions queue.
type TransitionPublisher struct {
    url     string
    events  chan q.SeatTransitionEvent
    publish publishFunc
    now     func() time.Time
    dropped atomic.Uint64

    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewTransitionPublisher creates a publisher with a queue of buffer
// pending events.  Run must be started to drain it.
func NewTransitionPublisher(url string, buffer int) *TransitionPublisher {
    if buffer <= 0 {
        buffer = 256
    }
    p := &TransitionPublisher{
        url:    url,
        events: make(chan q.SeatTransitionEvent, buffer),
        now:    time.Now,
    }
    p.publish = p.publishAMQP
    return p
}

// FrameReconciled queues one event per transition without blocking.
func (p *TransitionPublisher) FrameReconciled(sessionID string, r occupancy.FrameResult) {
    for _, tr := range r.Transitions {
        ev := q.SeatTransitionEvent{
            SessionID:      sessionID,
            Label:          tr.Label,
            Kind:           string(tr.Kind),
            At:             tr.At,
            ElapsedSeconds: tr.Elapsed,
            EmittedAt:      p.now().UTC().Format(time.RFC3339),
        }
        select {
        case p.events <- ev:
        default:
            p.dropped.Add(1)
            log.Warnf("rabbitmq: transition queue full, dropping %s %s", sessionID, tr.Label)
        }
    }
}

// FrameDropped is a no-op; drops are reported by metrics.
func (p *TransitionPublisher) FrameDropped(string) {}

// Dropped returns how many events were discarded on a full queue.
func (p *TransitionPublisher) Dropped() uint64 { return p.dropped.Load() }

// Run publishes queued events until ctx is cancelled.
func (p *TransitionPublisher) Run(ctx context.Context) {
    defer p.closeConn()
    for {
        select {
        case <-ctx.Done():
            return
        case ev := <-p.events:
            body, err := json.Marshal(ev)
            if err != nil {
                log.Errorf("rabbitmq: marshal event failed: %v", err)
                continue
            }
            pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
            if err := p.publish(pctx, body); err != nil {
                log.Warnf("rabbitmq: publish failed: %v", err)
            }
            cancel()
        }
    }
}

// publishAMQP keeps one connection open and redials after any failure.
func (p *TransitionPublisher) publishAMQP(ctx context.Context, body []byte) error {
    if p.ch == nil || p.ch.IsClosed() {
        if err := p.dial(); err != nil {
            return err
        }
    }
    pub := amqp.Publishing{
        ContentType:  q.ContentTypeJSON,
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    p.now().UTC(),
        Body:         body,
    }
    err := p.ch.PublishWithContext(ctx,
        "",                 // default exchange
        q.TransitionsQueue, // routing key = queue name
        false,              // mandatory
        false,              // immediate
        pub,
    )
    if err != nil {
        p.closeConn()
    }
    return err
}

func (p *TransitionPublisher) dial() error {
    p.closeConn()
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return err
    }
    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.TransitionsQueue, // name
        true,               // durable
        false,              // autoDelete
        false,              // exclusive
        false,              // noWait
        nil,                // args
    ); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return err
    }
    p.conn, p.ch = conn, ch
    return nil
}

func (p *TransitionPublisher) closeConn() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}
