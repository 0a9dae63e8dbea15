//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cardvault/internal/cards/store"
	"cardvault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	contractSuite
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t)
	s := new(PostgresStoreSuite)
	s.newStore = func() CardStore {
		require.NoError(t, pg.TruncateTables(context.Background(), "credit_cards"))
		return store.NewPostgres(pg.DB)
	}
	suite.Run(t, s)
}
