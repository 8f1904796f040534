package identity

import (
	"database/sql"
	"fmt"
	"time"
)

// Store persists the address book so simulated users survive process
// restarts. This is not the blog's database, just the agent's record
// of the accounts it has created.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the identity database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewStoreWithDB creates a store using an existing database connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL,
			password TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_identities_email ON identities(email);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts an identity. The id is the backend's user id, not an
// autoincrement; the backend is authoritative for ids.
func (s *Store) Add(ident Identity) error {
	created := ident.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO identities (id, username, email, password, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ident.ID, ident.Username, ident.Email, ident.Password, created.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// UpdatePassword records a rotated password.
func (s *Store) UpdatePassword(id int64, password string) error {
	res, err := s.db.Exec(`UPDATE identities SET password = ? WHERE id = ?`, password, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("identity %d not found", id)
	}
	return nil
}

// All returns every stored identity ordered by id.
func (s *Store) All() ([]Identity, error) {
	rows, err := s.db.Query(`
		SELECT id, username, email, password, created_at
		FROM identities ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var ident Identity
		var created string
		if err := rows.Scan(&ident.ID, &ident.Username, &ident.Email, &ident.Password, &created); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ident.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, ident)
	}
	return out, rows.Err()
}
