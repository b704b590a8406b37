package identity

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/nerrad567/tally-core/internal/entity"
	"github.com/nerrad567/tally-core/internal/infrastructure/database"
	"github.com/nerrad567/tally-core/internal/infrastructure/logging"
)

// SessionVerifier resolves a session token. *Client implements it.
type SessionVerifier interface {
	Whoami(ctx context.Context, token string) (*Session, error)
}

// Resolver turns session tokens into local users.
type Resolver struct {
	sessions SessionVerifier
	db       *database.Database
	logger   *logging.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(sessions SessionVerifier, db *database.Database, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{sessions: sessions, db: db, logger: logger}
}

// ResolveUser returns the local user for token, creating one the first time
// an identity is seen.
//
// The token must belong to an active session with an identity whose id is a
// UUID; otherwise an error wrapping ErrUnauthenticated is returned.
func (r *Resolver) ResolveUser(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	session, err := r.sessions.Whoami(ctx, token)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, ErrInactiveSession
	}
	if session.Identity == nil {
		return nil, ErrNoIdentity
	}
	identityID, err := uuid.Parse(session.Identity.ID)
	if err != nil {
		return nil, ErrInvalidIdentity
	}

	user, err := database.Read(ctx, r.db, func(conn *database.Conn) (*entity.User, error) {
		return userForIdentity(conn.Context(), conn, identityID)
	})
	if err != nil || user != nil {
		return user, err
	}

	// The lookup is repeated on the writer so two first requests for the
	// same identity cannot both create a user.
	type result struct {
		user    *entity.User
		created bool
	}
	res, err := database.Write(ctx, r.db, func(conn *database.Conn) (result, error) {
		var res result
		err := conn.Transact(func(tx *sql.Tx) error {
			existing, err := userForIdentity(conn.Context(), tx, identityID)
			if err != nil || existing != nil {
				res.user = existing
				return err
			}

			user := entity.NewUser(uuid.New())
			if err := user.Upsert(conn.Context(), tx); err != nil {
				return err
			}
			if _, err := user.CreateIdentityUser(conn.Context(), tx, identityID); err != nil {
				return err
			}
			res = result{user: user, created: true}
			return nil
		})
		return res, err
	})
	if err != nil {
		return nil, err
	}
	if res.created {
		r.logger.Info("created user for identity", "user_id", res.user.ID, "identity_id", identityID)
	}
	return res.user, nil
}

// userForIdentity follows the identity link, returning nil if there is none.
func userForIdentity(ctx context.Context, db entity.DBTX, identityID uuid.UUID) (*entity.User, error) {
	link, err := entity.RetrieveIdentityUser(ctx, db, identityID)
	if err != nil || link == nil {
		return nil, err
	}
	return link.RetrieveUser(ctx, db)
}
