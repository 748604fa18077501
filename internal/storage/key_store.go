package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/config"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no key record matches.
var ErrNotFound = errors.New("api key not found")

// NewKey describes a key record to insert. Hash is HashKey of the raw value.
type NewKey struct {
	Hash        string
	Prefix      string
	Name        string
	Description string
	UserID      *string
}

// KeyStore handles API key persistence
type KeyStore struct {
	db     *sql.DB
	driver string
	caps   config.CapabilitiesConfig
	now    func() time.Time
}

// NewKeyStore creates a new key store
func NewKeyStore(db *sql.DB, driver string, caps config.CapabilitiesConfig) *KeyStore {
	return &KeyStore{
		db:     db,
		driver: driver,
		caps:   caps,
		now:    time.Now,
	}
}

// HashKey returns the hex SHA-256 digest under which a key value is stored.
func HashKey(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

const keyColumns = "id, key_prefix, name, description, active, usage_count, last_used_at, created_at, user_id"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*models.APIKey, error) {
	var (
		key       models.APIKey
		lastUsed  sql.NullInt64
		createdAt int64
		userID    sql.NullString
	)
	err := row.Scan(&key.ID, &key.Prefix, &key.Name, &key.Description, &key.Active,
		&key.UsageCount, &lastUsed, &createdAt, &userID)
	if err != nil {
		return nil, err
	}
	key.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastUsed.Valid {
		t := time.Unix(lastUsed.Int64, 0).UTC()
		key.LastUsed = &t
	}
	if userID.Valid {
		uid := userID.String
		key.UserID = &uid
	}
	return &key, nil
}

// FindByValue looks a presented key up by its hash.
func (s *KeyStore) FindByValue(ctx context.Context, value string) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		s.q("SELECT "+keyColumns+" FROM api_keys WHERE key_hash = ?"), HashKey(value))
	key, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	return key, nil
}

// Get loads a key record by ID.
func (s *KeyStore) Get(ctx context.Context, id int64) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+keyColumns+" FROM api_keys WHERE id = ?"), id)
	key, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get api key %d", id)
	}
	return key, nil
}

// IncrementUsage atomically bumps the usage counter and returns the new value.
func (s *KeyStore) IncrementUsage(ctx context.Context, id int64) (int64, time.Time, error) {
	now := s.now().UTC().Truncate(time.Second)

	query := "UPDATE api_keys SET usage_count = usage_count + 1 WHERE id = ? RETURNING usage_count"
	args := []any{id}
	if s.caps.LastUsed {
		query = "UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ? RETURNING usage_count"
		args = []any{now.Unix(), id}
	}

	var count int64
	err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(err, "increment usage for key %d", id)
	}
	return count, now, nil
}

// Create inserts a new active key record.
func (s *KeyStore) Create(ctx context.Context, nk NewKey) (*models.APIKey, error) {
	if nk.Hash == "" || nk.Prefix == "" {
		return nil, errors.New("key hash and prefix are required")
	}
	if nk.Name == "" {
		return nil, errors.New("key name is required")
	}

	createdAt := s.now().UTC().Truncate(time.Second)
	var id int64
	err := s.db.QueryRowContext(ctx, s.q(
		`INSERT INTO api_keys (key_hash, key_prefix, name, description, active, usage_count, created_at, user_id)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?) RETURNING id`),
		nk.Hash, nk.Prefix, nk.Name, nk.Description, true, createdAt.Unix(), nullString(nk.UserID),
	).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "create api key")
	}

	return &models.APIKey{
		ID:          id,
		Prefix:      nk.Prefix,
		Name:        nk.Name,
		Description: nk.Description,
		Active:      true,
		CreatedAt:   createdAt,
		UserID:      nk.UserID,
	}, nil
}

// List lists all API keys, oldest first.
func (s *KeyStore) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+keyColumns+" FROM api_keys ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list api keys")
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan api key")
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrap(rows.Err(), "iterate api keys")
}

// SetActive toggles the active flag.
func (s *KeyStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE api_keys SET active = ? WHERE id = ?"), active, id)
	if err != nil {
		return errors.Wrapf(err, "set active for key %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *KeyStore) q(query string) string {
	return rebind(s.driver, query)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
