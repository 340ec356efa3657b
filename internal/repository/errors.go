// Package repository defines the MySQL-backed stores for users, bookings and
// refresh tokens, plus the sentinel errors they share.  Handlers and the
// booking workflow compare against these values with errors.Is to pick the
// user-facing message.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row does not exist or is not visible to the
// caller (for example a booking owned by someone else).
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by UserRepo.Create when the email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateBooking is returned when the user already holds a booking for
// the same movie, showtime and date.
var ErrDuplicateBooking = errors.New("duplicate booking")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique index violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
