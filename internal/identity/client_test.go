package identity_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/tally-core/internal/identity"
	"github.com/nerrad567/tally-core/internal/infrastructure/config"
	"github.com/nerrad567/tally-core/internal/testutil"
)

func newClient(t *testing.T, kratos *testutil.Kratos) *identity.Client {
	t.Helper()
	c, err := identity.NewClient(config.IdentityConfig{Enabled: true, PublicURL: kratos.URL + "/", Timeout: 2})
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:4433", "ftp://kratos", "http://[::1"} {
		_, err := identity.NewClient(config.IdentityConfig{PublicURL: u})
		assert.Error(t, err, u)
	}
}

func TestWhoami(t *testing.T) {
	kratos := testutil.NewKratos(t)
	c := newClient(t, kratos)
	token, identityID := kratos.AddActiveSession()

	session, err := c.Whoami(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, session.Active)
	require.NotNil(t, session.Identity)
	assert.Equal(t, identityID.String(), session.Identity.ID)
	assert.Equal(t, "email@email.com", session.Identity.Traits["email"])
}

func TestWhoami_Errors(t *testing.T) {
	kratos := testutil.NewKratos(t)
	c := newClient(t, kratos)
	ctx := context.Background()

	_, err := c.Whoami(ctx, "")
	require.ErrorIs(t, err, identity.ErrMissingToken)
	assert.Zero(t, kratos.WhoamiCalls(), "no request without a token")

	_, err = c.Whoami(ctx, "unknown")
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	kratos.FailWith(http.StatusForbidden)
	_, err = c.Whoami(ctx, "unknown")
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	kratos.FailWith(http.StatusBadGateway)
	_, err = c.Whoami(ctx, "unknown")
	var kerr *identity.KratosError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, http.StatusBadGateway, kerr.Status)
	assert.NotErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestHealthCheck(t *testing.T) {
	kratos := testutil.NewKratos(t)
	c := newClient(t, kratos)
	require.NoError(t, c.HealthCheck(context.Background()))

	kratos.Close()
	assert.Error(t, c.HealthCheck(context.Background()))
}
