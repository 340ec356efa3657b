package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	minReconnect = time.Second
	maxReconnect = 30 * time.Second
)

// reconnectBackOff never gives up on its own; it stops when ctx is done.
func reconnectBackOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = minReconnect
	eb.MaxInterval = maxReconnect
	eb.MaxElapsedTime = 0
	return backoff.WithContext(eb, ctx)
}

// StartBookingConsumer consumes booking events from queue and appends one
// line per event to logPath.  It reconnects with capped exponential backoff
// and returns only when ctx is cancelled.  Malformed messages are rejected
// without requeue so one bad message cannot loop forever.
func StartBookingConsumer(ctx context.Context, url, queue, logPath string, log logrus.FieldLogger) error {
	if queue == "" {
		queue = DefaultQueue
	}
	log = log.WithFields(logrus.Fields{"component": "booking-consumer", "queue": queue})

	bo := reconnectBackOff(ctx)
	for {
		conn, err := backoff.RetryNotifyWithData(func() (*amqp.Connection, error) {
			return amqp.Dial(url)
		}, bo, func(err error, wait time.Duration) {
			log.WithError(err).WithField("retry_in", wait.String()).Warn("dial broker failed")
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		bo.Reset()

		err = consumeLoop(ctx, conn, queue, logPath, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("consume loop ended, reconnecting")
		if wait := bo.NextBackOff(); wait == backoff.Stop || !sleep(ctx, wait) {
			return ctx.Err()
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

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue, logPath string, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("set QoS failed")
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
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(d.Body, logPath); err != nil {
				log.WithError(err).Warn("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(body []byte, logPath string) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev BookingEvent) string {
	action := "Booking created"
	if ev.Type == EventBookingCancelled {
		action = "Booking cancelled"
	}
	return fmt.Sprintf("[%s] %s | booking_id=%d | user_id=%d | movie_id=%d | movie=%q | seats=%d | showtime=%q | date=%s\n",
		ev.OccurredAt, action, ev.BookingID, ev.UserID, ev.MovieID, ev.MovieTitle, ev.Seats, ev.Showtime, ev.Date)
}
