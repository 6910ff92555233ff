// Package providers persists saved provider credentials and the active
// selection in a SQLite database.
package providers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/safeurl"
)

// ErrNotFound is returned when a provider name is not saved.
var ErrNotFound = errors.New("providers: not found")

const schema = `
CREATE TABLE IF NOT EXISTS providers (
	name       TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
	position   INTEGER NOT NULL,
	portal_url TEXT NOT NULL DEFAULT '',
	username   TEXT NOT NULL DEFAULT '',
	password   TEXT NOT NULL DEFAULT '',
	m3u_url    TEXT NOT NULL DEFAULT '',
	epg_url    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS active_provider (
	id   INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
	name TEXT NOT NULL COLLATE NOCASE
);`

// Store is a provider list backed by one SQLite file. Names are unique
// case-insensitively; List keeps first-insertion order.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open provider db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init provider db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every saved provider in first-insertion order.
func (s *Store) List(ctx context.Context) ([]catalog.ProviderCredentials, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, portal_url, username, password, m3u_url, epg_url FROM providers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()
	var out []catalog.ProviderCredentials
	for rows.Next() {
		var p catalog.ProviderCredentials
		if err := rows.Scan(&p.Name, &p.PortalURL, &p.Username, &p.Password, &p.M3UURL, &p.EPGURL); err != nil {
			return nil, fmt.Errorf("list providers: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns the provider saved under name (case-insensitive).
func (s *Store) Get(ctx context.Context, name string) (*catalog.ProviderCredentials, error) {
	var p catalog.ProviderCredentials
	err := s.db.QueryRowContext(ctx,
		`SELECT name, portal_url, username, password, m3u_url, epg_url FROM providers WHERE name = ?`,
		strings.TrimSpace(name)).Scan(&p.Name, &p.PortalURL, &p.Username, &p.Password, &p.M3UURL, &p.EPGURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

// Save inserts p or replaces the provider with the same name. A replaced
// provider keeps its position and takes the new spelling of the name.
func (s *Store) Save(ctx context.Context, p catalog.ProviderCredentials) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("save provider: name is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO providers (name, position, portal_url, username, password, m3u_url, epg_url)
VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM providers), ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	name = excluded.name,
	portal_url = excluded.portal_url,
	username = excluded.username,
	password = excluded.password,
	m3u_url = excluded.m3u_url,
	epg_url = excluded.epg_url`,
		p.Name, p.PortalURL, p.Username, p.Password, p.M3UURL, p.EPGURL)
	if err != nil {
		return fmt.Errorf("save provider %q: %w", p.Name, err)
	}
	return nil
}

// Delete removes name and clears the active selection if it pointed there.
// Deleting an unknown name is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete provider %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM active_provider WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete provider %q: %w", name, err)
	}
	return tx.Commit()
}

// SetActive selects name as the active provider. An empty name clears the
// selection; an unknown name returns ErrNotFound.
func (s *Store) SetActive(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM active_provider`); err != nil {
			return fmt.Errorf("clear active provider: %w", err)
		}
		return nil
	}
	p, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO active_provider (id, name) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`, p.Name)
	if err != nil {
		return fmt.Errorf("set active provider: %w", err)
	}
	return nil
}

// ActiveName returns the selected provider name, "" when none.
func (s *Store) ActiveName(ctx context.Context) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM active_provider WHERE id = 1`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("active provider: %w", err)
	}
	return name, nil
}

// LoadActive returns the active provider's credentials, or nil when none is
// selected or the selection no longer exists.
func (s *Store) LoadActive(ctx context.Context) (*catalog.ProviderCredentials, error) {
	name, err := s.ActiveName(ctx)
	if err != nil || name == "" {
		return nil, err
	}
	p, err := s.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// Validate checks that p has a name and usable URLs before it is saved.
func Validate(p catalog.ProviderCredentials) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("provider name is required")
	}
	if err := safeurl.CheckPortal(p.PortalURL); err != nil {
		return err
	}
	if err := safeurl.CheckOptional("m3u_url", p.M3UURL); err != nil {
		return err
	}
	return safeurl.CheckOptional("epg_url", p.EPGURL)
}
