// Package queue defines booking event payloads and the RabbitMQ publisher and
// consumer that carry them.
package queue

import (
	"time"

	"github.com/iliyamo/moviebook/internal/model"
)

// DefaultQueue is the durable queue booking events are published to.
const DefaultQueue = "booking.events"

// Event types.
const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
)

// BookingEvent is published whenever a booking is created or cancelled.  It
// carries enough detail for a consumer to log or notify without querying the
// database.
type BookingEvent struct {
	Type       string `json:"type"`
	BookingID  uint64 `json:"booking_id"`
	UserID     uint64 `json:"user_id"`
	MovieID    int64  `json:"movie_id"`
	MovieTitle string `json:"movie_title"`
	Seats      int    `json:"seats"`
	Showtime   string `json:"showtime"`
	Date       string `json:"date"`
	OccurredAt string `json:"occurred_at"`
}

// NewBookingEvent builds an event of the given type from b, stamped with at.
func NewBookingEvent(eventType string, b model.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:       eventType,
		BookingID:  b.ID,
		UserID:     b.UserID,
		MovieID:    b.MovieID,
		MovieTitle: b.MovieTitle,
		Seats:      b.Seats,
		Showtime:   b.Showtime,
		Date:       b.Date,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
