package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/moviebook/internal/model"
)

// BookingRepo stores bookings.  A booking is unique per (user, movie,
// showtime, date); the uq_bookings_slot index backs the check done in
// CreateUnique so two racing requests cannot both succeed.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, movie_id, movie_title, name, email, seats, showtime, booking_date, created_at`

// CreateUnique runs the duplicate check and the insert in one transaction.
// It returns ErrDuplicateBooking when a booking for the same slot exists,
// including the case where a concurrent insert wins the unique index.  On
// success b.ID and b.CreatedAt are populated.
func (r *BookingRepo) CreateUnique(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var existing uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM bookings WHERE user_id = ? AND movie_id = ? AND showtime = ? AND booking_date = ? LIMIT 1`,
		b.UserID, b.MovieID, b.Showtime, b.Date).Scan(&existing)
	switch {
	case err == nil:
		return ErrDuplicateBooking
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, movie_id, movie_title, name, email, seats, showtime, booking_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.MovieID, b.MovieTitle, b.Name, b.Email, b.Seats, b.Showtime, b.Date, createdAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateBooking
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	b.ID = uint64(id)
	b.CreatedAt = createdAt
	return nil
}

// ListByUser returns the user's bookings, newest first.  No bookings yields
// an empty, non-nil slice.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteForOwner removes a booking only when it belongs to the given user
// and contact email, and returns the deleted row.  A missing booking and a
// booking owned by someone else both yield ErrNotFound and leave the table
// untouched.
func (r *BookingRepo) DeleteForOwner(ctx context.Context, bookingID, userID uint64, email string) (model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? AND user_id = ? AND email = ? FOR UPDATE`,
		bookingID, userID, email)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, b.ID); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (model.Booking, error) {
	var b model.Booking
	err := s.Scan(&b.ID, &b.UserID, &b.MovieID, &b.MovieTitle, &b.Name, &b.Email,
		&b.Seats, &b.Showtime, &b.Date, &b.CreatedAt)
	return b, err
}
