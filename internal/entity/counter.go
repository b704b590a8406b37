package entity

import (
	"context"

	"github.com/google/uuid"
)

// Counter is a named unsigned counter.
//
//tally:entity
type Counter struct {
	Key   uuid.UUID `db:"key,pk" json:"key"`
	Value uint32    `db:"value" json:"value"`
}

// IncrementCounter adds by to the counter at key, creating it at by if it
// does not exist, and returns the new value. The addition happens in a single
// statement; a result above the uint32 range fails the table's CHECK
// constraint.
func IncrementCounter(ctx context.Context, db DBTX, key uuid.UUID, by uint32) (uint32, error) {
	var value uint32
	err := db.QueryRowContext(ctx,
		`INSERT INTO counters (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = value + excluded.value
		 RETURNING value`,
		key, by,
	).Scan(&value)
	return value, err
}
