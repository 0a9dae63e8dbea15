package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cardvault/internal/cards/store"
	"cardvault/internal/platform/sqlite"
)

type SQLiteStoreSuite struct {
	contractSuite
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := new(SQLiteStoreSuite)
	s.newStore = func() CardStore {
		db, err := sqlite.Open(context.Background(), ":memory:")
		require.NoError(t, err)
		st := store.NewSQLite(db)
		t.Cleanup(func() {
			st.Close()
			_ = db.Close()
		})
		return st
	}
	suite.Run(t, s)
}
