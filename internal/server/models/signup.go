package models

import "time"

// Signup is a persisted signup event. In-memory mode has no rows, only a
// counter.
type Signup struct {
	ID         int64
	UserIDHash string
	SourceID   string
	CreatedAt  time.Time
}

// SignedCount is the attested signup counter.
type SignedCount struct {
	Count     int64  `json:"count"`
	Signature string `json:"signature"`
	Timestamp string `json:"timestamp"`
}
