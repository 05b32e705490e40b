package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/igotyouboo-api/internal/metrics"
)

// DefaultAuditLog is where consumed account events are appended.
const DefaultAuditLog = "logs/account.log"

// StartAccountConsumer connects to RabbitMQ, declares the account.events
// queue (durable), and consumes it until ctx is cancelled.  Each event is
// appended to auditPath as one JSON line.  Broker failures trigger a
// reconnect with exponential backoff; a malformed message is rejected without
// requeue so the consumer keeps running.
func StartAccountConsumer(ctx context.Context, url, auditPath string) error {
    if auditPath == "" {
        auditPath = DefaultAuditLog
    }
    if err := os.MkdirAll(filepath.Dir(auditPath), 0o755); err != nil {
        return fmt.Errorf("mkdir audit dir: %w", err)
    }
    f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open audit log: %w", err)
    }
    defer f.Close()
    audit := zerolog.New(f).With().Timestamp().Logger()

    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn().Err(err).Dur("retry_in", backoff).Msg("account-consumer: failed to dial broker")
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, audit)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn().Err(err).Msg("account-consumer: consume loop ended; reconnecting")
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, audit zerolog.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn().Err(err).Msg("account-consumer: set QoS failed")
    }

    if _, err := ch.QueueDeclare(AccountEventsQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(AccountEventsQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := handleMessage(d.Body, audit); err != nil {
                log.Error().Err(err).Msg("account-consumer: handle message failed")
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// handleMessage decodes one delivery and writes its audit line.
func handleMessage(body []byte, audit zerolog.Logger) error {
    var ev AccountEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" || ev.UserID == "" {
        return errors.New("event is missing type or user id")
    }

    audit.Info().
        Str("event_id", ev.ID).
        Str("type", ev.Type).
        Str("user_id", ev.UserID).
        Str("username", ev.Username).
        Str("actor_id", ev.ActorID).
        Str("occurred_at", ev.OccurredAt).
        Msg("account event")
    metrics.RecordAccountEvent(ev.Type, "consumed")
    return nil
}
