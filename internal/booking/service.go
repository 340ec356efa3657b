// Package booking implements seat reservation for a movie showtime: form
// validation, the duplicate check and commit, owner-only cancellation and
// the per-user booking list.
package booking

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/model"
	"github.com/iliyamo/moviebook/internal/queue"
	"github.com/iliyamo/moviebook/internal/repository"
)

// User-facing outcome messages.
const (
	MsgIncomplete  = "Please complete all fields to book your cinematic adventure!"
	MsgDuplicate   = "You have already booked this movie for the selected showtime and date."
	MsgBooked      = "Booking successful! Get ready for a blockbuster experience."
	MsgCancelled   = "Booking Cancelled — Your ticket has been released!"
	MsgBadSeats    = "Please choose between 1 and 10 seats."
	MsgBadDate     = "Please pick a valid date."
	MsgBadShowtime = "Please pick one of the listed showtimes."
)

// Input limits.  The lengths match the bookings table columns.
const (
	MaxSeats       = 10
	MaxShowtimeLen = 50
	MaxTitleLen    = 255
)

// UnknownTitle is stored when the booking form carries no movie title.
const UnknownTitle = "Unknown"

// Outcome classifies a booking attempt.
type Outcome int

const (
	OutcomeInvalid Outcome = iota
	OutcomeDuplicate
	OutcomeBooked
)

// Request is the submitted booking form.  Seats is kept as text so that a
// non-numeric value is reported as a validation failure, not a bind error.
type Request struct {
	MovieID    int64
	MovieTitle string
	Seats      string `validate:"required"`
	Showtime   string `validate:"required,max=50"`
	Date       string `validate:"required,datetime=2006-01-02"`
}

// Result is the outcome of Book together with the message to show.
type Result struct {
	Outcome Outcome
	Message model.Message
	Booking model.Booking
}

// Store is the persistence the workflow needs; *repository.BookingRepo
// satisfies it.
type Store interface {
	CreateUnique(ctx context.Context, b *model.Booking) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	DeleteForOwner(ctx context.Context, bookingID, userID uint64, email string) (model.Booking, error)
}

// Service runs the booking workflow.
type Service struct {
	store    Store
	pub      queue.Publisher
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewService returns a booking Service.  A nil publisher drops events.
func NewService(store Store, pub queue.Publisher, log logrus.FieldLogger) *Service {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &Service{
		store:    store,
		pub:      pub,
		validate: validator.New(),
		log:      log.WithField("component", "booking"),
		now:      time.Now,
	}
}

// Book validates req and, when it is acceptable and not a duplicate, stores
// a booking for user.  Validation failures and duplicates are reported in
// the Result; only store failures are returned as errors.
func (s *Service) Book(ctx context.Context, user model.User, req Request) (Result, error) {
	req.Seats = strings.TrimSpace(req.Seats)
	req.Showtime = strings.TrimSpace(req.Showtime)
	req.Date = strings.TrimSpace(req.Date)
	req.MovieTitle = strings.TrimSpace(req.MovieTitle)

	if msg, ok := s.check(req); !ok {
		return Result{Outcome: OutcomeInvalid, Message: model.Message{Kind: model.KindWarning, Text: msg}}, nil
	}
	seats, _ := strconv.Atoi(req.Seats)

	title := truncate(req.MovieTitle, MaxTitleLen)
	if title == "" {
		title = UnknownTitle
	}
	b := model.Booking{
		UserID:     user.ID,
		MovieID:    req.MovieID,
		MovieTitle: title,
		Name:       user.Name,
		Email:      user.Email,
		Seats:      seats,
		Showtime:   req.Showtime,
		Date:       req.Date,
	}
	if err := s.store.CreateUnique(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrDuplicateBooking) {
			return Result{Outcome: OutcomeDuplicate, Message: model.Message{Kind: model.KindError, Text: MsgDuplicate}}, nil
		}
		return Result{}, err
	}

	s.publish(ctx, queue.EventBookingCreated, b)
	s.log.WithFields(logrus.Fields{"booking_id": b.ID, "user_id": b.UserID, "movie_id": b.MovieID}).Info("booking created")
	return Result{
		Outcome: OutcomeBooked,
		Message: model.Message{Kind: model.KindSuccess, Text: MsgBooked},
		Booking: b,
	}, nil
}

// check returns the message for the first problem in req.
func (s *Service) check(req Request) (string, bool) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch {
				case fe.Tag() == "datetime":
					return MsgBadDate, false
				case fe.Field() == "Showtime" && fe.Tag() == "max":
					return MsgBadShowtime, false
				}
			}
		}
		return MsgIncomplete, false
	}
	n, err := strconv.Atoi(req.Seats)
	if err != nil || n <= 0 || n > MaxSeats {
		return MsgBadSeats, false
	}
	return "", true
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// Cancel deletes bookingID when it belongs to user.  A booking that does not
// exist or belongs to someone else yields false and no error.
func (s *Service) Cancel(ctx context.Context, user model.User, bookingID uint64) (bool, error) {
	b, err := s.store.DeleteForOwner(ctx, bookingID, user.ID, user.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.WithFields(logrus.Fields{"booking_id": bookingID, "user_id": user.ID}).Info("cancel refused: not owner or missing")
			return false, nil
		}
		return false, err
	}
	s.publish(ctx, queue.EventBookingCancelled, b)
	return true, nil
}

// ListForUser returns user's bookings, newest first.
func (s *Service) ListForUser(ctx context.Context, user model.User) ([]model.Booking, error) {
	return s.store.ListByUser(ctx, user.ID)
}

func (s *Service) publish(ctx context.Context, eventType string, b model.Booking) {
	ev := queue.NewBookingEvent(eventType, b, s.now())
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("publish booking event failed")
	}
}
