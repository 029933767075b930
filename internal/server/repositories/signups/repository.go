// Package signups declares the persisted signup repository.
package signups

import "context"

type Repository interface {
	// Insert records one signup and returns the row id.
	Insert(ctx context.Context, userIDHash string, sourceID string) (int64, error)

	// Count returns the total number of recorded signups.
	Count(ctx context.Context) (int64, error)

	// Truncate removes every signup. Only used by non-production resets.
	Truncate(ctx context.Context) error
}
