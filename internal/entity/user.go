package entity

import (
	"context"

	"github.com/google/uuid"
)

// User is a local account. Users are created on first sight of an external
// identity and have no other attributes yet.
//
//tally:entity
type User struct {
	ID uuid.UUID `db:"id,pk" json:"id"`
}

// CreateIdentityUser links identityID to u and stores the link.
func (u *User) CreateIdentityUser(ctx context.Context, db DBTX, identityID uuid.UUID) (*IdentityUser, error) {
	link := NewIdentityUser(identityID, u.ID)
	if err := link.Upsert(ctx, db); err != nil {
		return nil, err
	}
	return link, nil
}
