package repositories

import "gorm.io/gorm"

// ErrNotFound is returned when a lookup matches no row. It is gorm's own
// sentinel so callers may check either.
var ErrNotFound = gorm.ErrRecordNotFound
