// Package postgres implements structure.Store on top of pgx, backing the
// topology tree with a single self-referential table (spec.md §9's tagged
// variant collapses the class-per-level hierarchy into one row shape).
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serbia-gov/platform/internal/shared/errors"
	"github.com/serbia-gov/platform/internal/shared/types"
	"github.com/serbia-gov/platform/internal/structure"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration under migrations/, tracked in the
// same schema_migrations bookkeeping table domain/postgres.Migrate uses.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		version := "structure_" + strings.TrimSuffix(file, ".sql")
		if applied[version] {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", file, err)
		}

		if _, err = tx.Exec(ctx, string(content)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}

		if _, err = tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", file, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", file, err)
		}

		fmt.Printf("applied migration: %s\n", version)
	}

	return nil
}

// Store implements structure.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, n *structure.Node) error {
	if n.ID.IsZero() {
		n.ID = types.NewID()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO structure.nodes (id, parent_id, physical_type, identifier, name, short_name, description, status, mode, address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.ParentID, string(n.PhysicalType), n.Identifier, n.Name, n.ShortName, n.Description,
		string(n.Status), string(n.Mode), n.Address)
	if err != nil {
		return errors.Wrap(err, "failed to create structure node")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*structure.Node, error) {
	return s.scanOne(ctx, `
		SELECT id, parent_id, physical_type, identifier, name, short_name, description, status, mode, address
		FROM structure.nodes WHERE id = $1`, id)
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*structure.Node, error) {
	return s.scanOne(ctx, `
		SELECT id, parent_id, physical_type, identifier, name, short_name, description, status, mode, address
		FROM structure.nodes WHERE identifier = $1`, identifier)
}

func (s *Store) scanOne(ctx context.Context, query string, arg any) (*structure.Node, error) {
	n := &structure.Node{}
	var physicalType, status, mode string
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&n.ID, &n.ParentID, &physicalType, &n.Identifier, &n.Name, &n.ShortName, &n.Description,
		&status, &mode, &n.Address)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find structure node")
	}
	n.PhysicalType = structure.PhysicalType(physicalType)
	n.Status = structure.NodeStatus(status)
	n.Mode = structure.NodeMode(mode)
	return n, nil
}

func (s *Store) Children(ctx context.Context, parentID types.ID) ([]*structure.Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, parent_id, physical_type, identifier, name, short_name, description, status, mode, address
		FROM structure.nodes WHERE parent_id = $1 ORDER BY name`, parentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list structure children")
	}
	defer rows.Close()

	var out []*structure.Node
	for rows.Next() {
		n := &structure.Node{}
		var physicalType, status, mode string
		if err := rows.Scan(&n.ID, &n.ParentID, &physicalType, &n.Identifier, &n.Name, &n.ShortName,
			&n.Description, &status, &mode, &n.Address); err != nil {
			return nil, errors.Wrap(err, "failed to scan structure node")
		}
		n.PhysicalType = structure.PhysicalType(physicalType)
		n.Status = structure.NodeStatus(status)
		n.Mode = structure.NodeMode(mode)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate structure children")
	}
	return out, nil
}
