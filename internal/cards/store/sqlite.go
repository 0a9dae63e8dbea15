package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"cardvault/internal/cards/models"
	cvsqlite "cardvault/internal/platform/sqlite"
	id "cardvault/pkg/domain"
	"cardvault/pkg/platform/sentinel"
)

const sqliteCardColumns = `id, user_id, token, last_four, issuer, status, ruv, fingerprint, created_at_ns, updated_at_ns`

// SQLiteStore persists cards in a single SQLite file. Writes go through the
// single-writer worker; reads use the pool directly.
type SQLiteStore struct {
	db     *sql.DB
	writer *cvsqlite.Worker
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, writer: cvsqlite.NewWorker(db)}
}

// Close stops the writer. The *sql.DB stays owned by the caller.
func (s *SQLiteStore) Close() {
	s.writer.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, card *models.CreditCard) error {
	if card == nil {
		return fmt.Errorf("card is required")
	}
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credit_cards (`+sqliteCardColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			card.ID.String(), card.UserID.String(), card.Token, card.LastFour,
			string(card.Issuer), string(card.Status), card.Reference, card.Fingerprint,
			card.CreatedAt.UnixNano(), card.UpdatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		if isSQLiteConstraint(err) {
			return fmt.Errorf("create card: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, cardID id.CardID) (*models.CreditCard, error) {
	return s.findOne(ctx, "id = ?", cardID.String())
}

func (s *SQLiteStore) FindByReference(ctx context.Context, reference string) (*models.CreditCard, error) {
	return s.findOne(ctx, "ruv = ?", reference)
}

func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fingerprint string) (*models.CreditCard, error) {
	return s.findOne(ctx, "fingerprint = ?", fingerprint)
}

func (s *SQLiteStore) findOne(ctx context.Context, where string, arg any) (*models.CreditCard, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCardColumns+` FROM credit_cards WHERE `+where, arg)
	card, err := scanSQLiteCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find card: %w", err)
	}
	return card, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter models.ListFilter) ([]*models.CreditCard, error) {
	where, args := sqliteFilterClause(filter)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCardColumns+` FROM credit_cards`+where+` ORDER BY created_at_ns, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := make([]*models.CreditCard, 0)
	for rows.Next() {
		card, err := scanSQLiteCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, filter models.ListFilter) (int, error) {
	where, args := sqliteFilterClause(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credit_cards`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CompareAndSetStatus(ctx context.Context, cardID id.CardID, update models.StatusUpdate) (bool, error) {
	var applied bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE credit_cards
			SET status = ?,
			    issuer = COALESCE(NULLIF(?, ''), issuer),
			    updated_at_ns = MAX(updated_at_ns, ?)
			WHERE id = ? AND status = ?`,
			string(update.To), string(update.Issuer), update.UpdatedAt.UnixNano(),
			cardID.String(), string(update.From),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 {
			applied = true
			return nil
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM credit_cards WHERE id = ?`, cardID.String()).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return sentinel.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("update card status: %w", err)
	}
	return applied, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanSQLiteCard(row rowScanner) (*models.CreditCard, error) {
	var (
		card                 models.CreditCard
		cardID, userID       string
		issuer, status       string
		createdNs, updatedNs int64
	)
	if err := row.Scan(&cardID, &userID, &card.Token, &card.LastFour, &issuer, &status,
		&card.Reference, &card.Fingerprint, &createdNs, &updatedNs); err != nil {
		return nil, err
	}
	parsedCard, err := id.ParseCardID(cardID)
	if err != nil {
		return nil, err
	}
	parsedUser, err := id.ParseUserID(userID)
	if err != nil {
		return nil, err
	}
	card.ID = parsedCard
	card.UserID = parsedUser
	card.Issuer = models.Issuer(issuer)
	card.Status = models.Status(status)
	card.CreatedAt = time.Unix(0, createdNs).UTC()
	card.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return &card, nil
}

func sqliteFilterClause(filter models.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID.String())
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func isSQLiteConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
