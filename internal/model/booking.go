package model

import "time"

// Booking records a user's reservation of seats for one movie, showtime and
// date.  Name and Email are copies of the owner's contact identity taken at
// booking time; cancellation checks them together with UserID.  A booking is
// never updated: it is created by the booking workflow and removed by its
// owner.
type Booking struct {
	ID         uint64    `json:"id"`          // bookings.id
	UserID     uint64    `json:"user_id"`     // bookings.user_id
	MovieID    int64     `json:"movie_id"`    // bookings.movie_id (TMDB id)
	MovieTitle string    `json:"movie_title"` // bookings.movie_title
	Name       string    `json:"name"`        // bookings.name
	Email      string    `json:"email"`       // bookings.email
	Seats      int       `json:"seats"`       // bookings.seats
	Showtime   string    `json:"showtime"`    // bookings.showtime
	Date       string    `json:"date"`        // bookings.booking_date, YYYY-MM-DD
	CreatedAt  time.Time `json:"created_at"`  // bookings.created_at
}
