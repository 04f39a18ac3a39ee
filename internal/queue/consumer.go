package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/seat-occupancy/internal/model"
    "github.com/iliyamo/seat-occupancy/internal/occupancy"
)

// FrameSink accepts detections for a session.  A nil timestamp asks the
// sink to stamp the frame itself.
type FrameSink interface {
    SubmitFrame(sessionID string, ts *float64, dets []model.Detection) error
}

// handlerFunc processes one delivery.  A returned error rejects the
// message without requeue.
type handlerFunc func(d amqp.Delivery) error

// StartDetectionsConsumer consumes occupancy.detections and submits every
// batch to sink.  It reconnects with exponential backoff and returns when
// ctx is cancelled.
func StartDetectionsConsumer(ctx context.Context, url string, sink FrameSink) {
    run(ctx, url, DetectionsQueue, "detections-consumer", func(d amqp.Delivery) error {
        return handleDetections(sink, d.ContentType, d.Body)
    })
}

// StartTransitionAudit consumes occupancy.transitions and appends one line
// per event to logDir/occupancy.log.
func StartTransitionAudit(ctx context.Context, url, logDir string) {
    run(ctx, url, TransitionsQueue, "transition-audit", func(d amqp.Delivery) error {
        return appendTransition(logDir, d.Body)
    })
}

func run(ctx context.Context, url, queue, name string, h handlerFunc) {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warnf("%s: failed to dial broker: %v; retrying in %s", name, err, backoff)
            if !sleep(ctx, backoff) {
                return
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, queue, name, h)
        _ = conn.Close()
        if err == nil {
            return
        }
        log.Warnf("%s: consume loop ended: %v; reconnecting", name, err)
        // Sleep briefly before reconnect
        if !sleep(ctx, 2*time.Second) {
            return
        }
    }
}

// consumeLoop returns nil only when ctx is cancelled.
func consumeLoop(ctx context.Context, conn *amqp.Connection, queue, name string, h handlerFunc) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warnf("%s: set QoS failed: %v", name, err)
    }

    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return nil
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := h(d); err != nil {
                log.Warnf("%s: handle message failed: %v", name, err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

// handleDetections decodes a batch and hands it to the sink.  A frame
// dropped on a full session buffer is acknowledged: the drop is already
// counted and redelivery would only arrive later still.
func handleDetections(sink FrameSink, contentType string, body []byte) error {
    ev, err := DecodeFrameEvent(contentType, body)
    if err != nil {
        return err
    }
    err = sink.SubmitFrame(ev.SessionID, ev.Timestamp, ev.Detections)
    if errors.Is(err, occupancy.ErrFrameDropped) {
        return nil
    }
    return err
}

func appendTransition(logDir string, body []byte) error {
    var ev SeatTransitionEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    // Ensure logs directory exists
    if err := os.MkdirAll(logDir, 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    fpath := filepath.Join(logDir, "occupancy.log")
    f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatTransition(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatTransition renders one audit log line, newline terminated.
func FormatTransition(ev SeatTransitionEvent) string {
    return fmt.Sprintf("[%s] Seat %s | session_id=%s | seat=%q | at=%.2f | elapsed=%s s\n",
        ev.EmittedAt, ev.Kind, ev.SessionID, ev.Label, ev.At, occupancy.FormatSeconds(ev.ElapsedSeconds))
}
