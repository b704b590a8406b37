package identity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tally-core/internal/entity"
	"github.com/nerrad567/tally-core/internal/identity"
	"github.com/nerrad567/tally-core/internal/infrastructure/database"
	"github.com/nerrad567/tally-core/internal/testutil"
)

func countUsers(t *testing.T, db *database.Database) int {
	t.Helper()
	users, err := database.Read(context.Background(), db, func(conn *database.Conn) ([]entity.User, error) {
		return entity.RetrieveAllUsers(conn.Context(), conn)
	})
	require.NoError(t, err)
	return len(users)
}

func TestResolveUser_CreatesOnFirstSight(t *testing.T) {
	kratos := testutil.NewKratos(t)
	db := testutil.OpenDB(t)
	r := identity.NewResolver(newClient(t, kratos), db, nil)
	token, _ := kratos.AddActiveSession()
	ctx := context.Background()

	first, err := r.ResolveUser(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.ResolveUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, countUsers(t, db))
}

func TestResolveUser_ExistingMapping(t *testing.T) {
	kratos := testutil.NewKratos(t)
	db := testutil.OpenDB(t, testutil.Users, testutil.IdentityUsers)
	r := identity.NewResolver(newClient(t, kratos), db, nil)
	token := kratos.AddSession("ory_st_fixture", testutil.KratosSession{
		IdentityID: testutil.IdentityID.String(),
		Active:     true,
	})

	user, err := r.ResolveUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, testutil.UserID, user.ID)
	assert.Equal(t, 2, countUsers(t, db), "no user created")
}

func TestResolveUser_ConcurrentFirstRequests(t *testing.T) {
	kratos := testutil.NewKratos(t)
	db := testutil.OpenFileDB(t)
	r := identity.NewResolver(newClient(t, kratos), db, nil)
	token, _ := kratos.AddActiveSession()

	const n = 16
	ids := make([]uuid.UUID, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			u, err := r.ResolveUser(context.Background(), token)
			if err != nil {
				return err
			}
			ids[i] = u.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, countUsers(t, db))
}

func TestResolveUser_Rejects(t *testing.T) {
	kratos := testutil.NewKratos(t)
	db := testutil.OpenDB(t)
	r := identity.NewResolver(newClient(t, kratos), db, nil)

	tests := []struct {
		name    string
		session *testutil.KratosSession
		wantErr error
	}{
		{name: "missing token", wantErr: identity.ErrMissingToken},
		{name: "unknown token", session: nil, wantErr: identity.ErrUnauthenticated},
		{name: "inactive", session: &testutil.KratosSession{IdentityID: uuid.NewString()}, wantErr: identity.ErrInactiveSession},
		{name: "no identity", session: &testutil.KratosSession{Active: true, NoIdentity: true}, wantErr: identity.ErrNoIdentity},
		{name: "non-uuid identity", session: &testutil.KratosSession{Active: true, IdentityID: "not-a-uuid"}, wantErr: identity.ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := ""
			switch {
			case tt.session != nil:
				token = kratos.AddSession("ory_st_"+uuid.NewString(), *tt.session)
			case tt.wantErr != identity.ErrMissingToken:
				token = "ory_st_unknown"
			}

			user, err := r.ResolveUser(context.Background(), token)
			assert.Nil(t, user)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, identity.ErrUnauthenticated)
		})
	}
	assert.Zero(t, countUsers(t, db))
}
