package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubdomainRepository errors
var (
	ErrSubdomainNotFound = errors.New("subdomain not found")
	ErrSubdomainExists   = errors.New("subdomain already exists")
	ErrNullifierExists   = errors.New("nullifier already registered")
)

const (
	uniqueViolation        = "23505"
	labelUniqueIndex       = "idx_subdomains_label"
	nullifierUniqueIndex   = "idx_subdomains_nullifier_hash"
	subdomainSelectColumns = `id, label, full_name, node, owner_address, nullifier_hash, description, url, avatar_key, created_at, updated_at`
)

// SubdomainRepository implements subdomain data access using PostgreSQL
type SubdomainRepository struct {
	pool *pgxpool.Pool
}

// NewSubdomainRepository creates a new SubdomainRepository instance
func NewSubdomainRepository(pool *pgxpool.Pool) *SubdomainRepository {
	return &SubdomainRepository{pool: pool}
}

// ExistsByLabel reports whether the label is already reserved (case-insensitive)
func (r *SubdomainRepository) ExistsByLabel(ctx context.Context, label string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM subdomains WHERE label = LOWER($1))`,
		label,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check subdomain existence: %w", err)
	}
	return exists, nil
}

// Create inserts a new subdomain. The unique indexes on label and nullifier
// make this the authoritative check; a lost race returns ErrSubdomainExists.
func (r *SubdomainRepository) Create(ctx context.Context, s *Subdomain) error {
	query := `
		INSERT INTO subdomains (id, label, full_name, node, owner_address, nullifier_hash, description, url, created_at, updated_at)
		VALUES ($1, LOWER($2), LOWER($3), $4, LOWER($5), LOWER($6), $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	now := time.Now().UTC()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		s.ID,
		s.Label,
		s.FullName,
		s.Node,
		s.OwnerAddress,
		s.NullifierHash,
		s.Description,
		s.URL,
		now,
		now,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case labelUniqueIndex:
				return ErrSubdomainExists
			case nullifierUniqueIndex:
				return ErrNullifierExists
			}
		}
		return fmt.Errorf("failed to create subdomain: %w", err)
	}

	s.Label = strings.ToLower(s.Label)
	s.FullName = strings.ToLower(s.FullName)
	s.OwnerAddress = strings.ToLower(s.OwnerAddress)
	s.NullifierHash = strings.ToLower(s.NullifierHash)
	return nil
}

// GetByLabel retrieves a subdomain by its label
func (r *SubdomainRepository) GetByLabel(ctx context.Context, label string) (*Subdomain, error) {
	query := `SELECT ` + subdomainSelectColumns + ` FROM subdomains WHERE label = LOWER($1)`

	s, err := scanSubdomain(r.pool.QueryRow(ctx, query, label))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubdomainNotFound
		}
		return nil, fmt.Errorf("failed to get subdomain by label: %w", err)
	}
	return s, nil
}

// GetByOwner retrieves all subdomains owned by a wallet, oldest first
func (r *SubdomainRepository) GetByOwner(ctx context.Context, owner string) ([]Subdomain, error) {
	query := `SELECT ` + subdomainSelectColumns + ` FROM subdomains WHERE owner_address = LOWER($1) ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list subdomains: %w", err)
	}
	defer rows.Close()

	var result []Subdomain
	for rows.Next() {
		s, err := scanSubdomain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subdomain: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subdomains: %w", err)
	}
	return result, nil
}

// UpdateRecords replaces the text records of a subdomain
func (r *SubdomainRepository) UpdateRecords(ctx context.Context, label string, description, url *string) (*Subdomain, error) {
	query := `
		UPDATE subdomains SET description = $2, url = $3, updated_at = $4
		WHERE label = LOWER($1)
		RETURNING ` + subdomainSelectColumns

	s, err := scanSubdomain(r.pool.QueryRow(ctx, query, label, description, url, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubdomainNotFound
		}
		return nil, fmt.Errorf("failed to update subdomain records: %w", err)
	}
	return s, nil
}

// UpdateAvatar sets the storage key of the subdomain avatar
func (r *SubdomainRepository) UpdateAvatar(ctx context.Context, label, avatarKey string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subdomains SET avatar_key = $2, updated_at = $3 WHERE label = LOWER($1)`,
		label, avatarKey, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update subdomain avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubdomainNotFound
	}
	return nil
}

// ReferencedAvatarKeys returns which of keys are some subdomain's current avatar
func (r *SubdomainRepository) ReferencedAvatarKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT avatar_key FROM subdomains WHERE avatar_key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to check avatar keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan avatar key: %w", err)
		}
		result[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate avatar keys: %w", err)
	}
	return result, nil
}

func scanSubdomain(row pgx.Row) (*Subdomain, error) {
	s := &Subdomain{}
	err := row.Scan(
		&s.ID,
		&s.Label,
		&s.FullName,
		&s.Node,
		&s.OwnerAddress,
		&s.NullifierHash,
		&s.Description,
		&s.URL,
		&s.AvatarKey,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
