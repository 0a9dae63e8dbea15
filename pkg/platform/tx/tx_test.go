package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE cards (ref TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cards`).Scan(&n))
	return n
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := openDB(t)
		err := Run(ctx, db, func(ctx context.Context) error {
			_, ok := From(ctx)
			assert.True(t, ok, "transaction carried in ctx")
			_, err := QuerierFrom(ctx, db).ExecContext(ctx, `INSERT INTO cards VALUES ('ruv-1')`)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := openDB(t)
		boom := errors.New("boom")
		err := Run(ctx, db, func(ctx context.Context) error {
			_, err := QuerierFrom(ctx, db).ExecContext(ctx, `INSERT INTO cards VALUES ('ruv-1')`)
			require.NoError(t, err)
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 0, count(t, db))
	})

	t.Run("reuses an outer transaction", func(t *testing.T) {
		db := openDB(t)
		err := Run(ctx, db, func(outer context.Context) error {
			outerTx, _ := From(outer)
			return Run(outer, db, func(inner context.Context) error {
				innerTx, _ := From(inner)
				assert.Same(t, outerTx, innerTx)
				_, err := QuerierFrom(inner, db).ExecContext(inner, `INSERT INTO cards VALUES ('ruv-1')`)
				return err
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		db := openDB(t)
		assert.Panics(t, func() {
			_ = Run(ctx, db, func(ctx context.Context) error {
				_, _ = QuerierFrom(ctx, db).ExecContext(ctx, `INSERT INTO cards VALUES ('ruv-1')`)
				panic("store bug")
			})
		})
		assert.Equal(t, 0, count(t, db))
	})
}

func TestQuerierFrom_FallsBackToDB(t *testing.T) {
	db := openDB(t)
	assert.Same(t, db, QuerierFrom(context.Background(), db))
	assert.Equal(t, context.Background(), WithTx(context.Background(), nil))
}
