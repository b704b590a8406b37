package entity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IdentityUser maps an external identity to the local User it signs in as.
//
//tally:entity
type IdentityUser struct {
	ID     uuid.UUID `db:"id,pk" json:"id"`
	UserID uuid.UUID `db:"user_id" json:"user_id"`
}

// RetrieveUser returns the User that i points at. The foreign key guarantees
// it exists, so a missing row is reported as an error.
func (i *IdentityUser) RetrieveUser(ctx context.Context, db DBTX) (*User, error) {
	user, err := RetrieveUser(ctx, db, i.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("identity %s references missing user %s", i.ID, i.UserID)
	}
	return user, nil
}
