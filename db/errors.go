package db

import (
	"strings"

	"github.com/teranos/autoboat/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// It matches both ErrDatabaseClosed and the raw database/sql message, since the
// driver returns its own error values that cannot be marked at the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	return strings.Contains(err.Error(), "database is closed")
}
