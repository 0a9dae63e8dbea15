package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"cardvault/internal/cards/models"
	id "cardvault/pkg/domain"
	"cardvault/pkg/platform/sentinel"
	"cardvault/pkg/platform/tx"
)

const uniqueViolation = pq.ErrorCode("23505")

const cardColumns = `id, user_id, token, last_four, issuer, status, ruv, fingerprint, created_at, updated_at`

// PostgresStore persists cards in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed card store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, card *models.CreditCard) error {
	if card == nil {
		return fmt.Errorf("card is required")
	}
	_, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO credit_cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(card.ID), uuid.UUID(card.UserID), card.Token, card.LastFour,
		string(card.Issuer), string(card.Status), card.Reference, card.Fingerprint,
		card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create card: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, cardID id.CardID) (*models.CreditCard, error) {
	return s.findOne(ctx, "id = $1", uuid.UUID(cardID))
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (*models.CreditCard, error) {
	return s.findOne(ctx, "ruv = $1", reference)
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint string) (*models.CreditCard, error) {
	return s.findOne(ctx, "fingerprint = $1", fingerprint)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.CreditCard, error) {
	row := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM credit_cards WHERE `+where, arg)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find card: %w", err)
	}
	return card, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.CreditCard, error) {
	where, args := filterClause(filter)
	rows, err := tx.QuerierFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+cardColumns+` FROM credit_cards`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := make([]*models.CreditCard, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

func (s *PostgresStore) Count(ctx context.Context, filter models.ListFilter) (int, error) {
	where, args := filterClause(filter)
	var n int
	err := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_cards`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// CompareAndSetStatus relies on the WHERE status guard for atomicity. The
// update and the existence check share one transaction, so a zero row count
// is reported as either a lost race or a missing card, never both.
func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, cardID id.CardID, update models.StatusUpdate) (bool, error) {
	var swapped bool
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.QuerierFrom(ctx, s.db)
		res, err := q.ExecContext(ctx, `
			UPDATE credit_cards
			SET status = $3,
			    issuer = COALESCE(NULLIF($4, ''), issuer),
			    updated_at = GREATEST(updated_at, $5)
			WHERE id = $1 AND status = $2`,
			uuid.UUID(cardID), string(update.From), string(update.To), string(update.Issuer), update.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update card status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update card status: %w", err)
		}
		if affected == 1 {
			swapped = true
			return nil
		}

		var exists bool
		if err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM credit_cards WHERE id = $1)`, uuid.UUID(cardID)).Scan(&exists); err != nil {
			return fmt.Errorf("update card status: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return nil
	})
	return swapped, err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.CreditCard, error) {
	var (
		card           models.CreditCard
		cardID, userID uuid.UUID
		issuer, status string
	)
	if err := row.Scan(&cardID, &userID, &card.Token, &card.LastFour, &issuer, &status,
		&card.Reference, &card.Fingerprint, &card.CreatedAt, &card.UpdatedAt); err != nil {
		return nil, err
	}
	card.ID = id.CardID(cardID)
	card.UserID = id.UserID(userID)
	card.Issuer = models.Issuer(issuer)
	card.Status = models.Status(status)
	card.CreatedAt = card.CreatedAt.UTC()
	card.UpdatedAt = card.UpdatedAt.UTC()
	return &card, nil
}

func filterClause(filter models.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != nil {
		args = append(args, uuid.UUID(*filter.UserID))
		conds = append(conds, "user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == uniqueViolation
}
