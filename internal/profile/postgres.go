package profile

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/techtie/match-app/internal/matching"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGStore reads and seeds the candidates table in PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// OpenPG connects to dsn and verifies the connection.
func OpenPG(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("profile: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: ping postgres: %w", err)
	}
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Candidates returns every row ordered by display position.
func (s *PGStore) Candidates(ctx context.Context) ([]matching.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, title, bio, skills, interests, experience_years, location, online
		FROM candidates
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("profile: query candidates: %w", err)
	}
	defer rows.Close()

	var out []matching.Candidate
	for rows.Next() {
		var c matching.Candidate
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Title, &c.Bio,
			pq.Array(&c.Skills), pq.Array(&c.Interests),
			&c.ExperienceYears, &c.Location, &c.Online,
		); err != nil {
			return nil, fmt.Errorf("profile: scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: iterate candidates: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates cands in one transaction. A candidate's position
// is its index in cands. progress, when non-nil, is called after each row.
func (s *PGStore) Upsert(ctx context.Context, cands []matching.Candidate, progress func(done int)) error {
	if err := Validate(cands); err != nil {
		return fmt.Errorf("profile: upsert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("profile: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates
			(id, position, name, title, bio, skills, interests, experience_years, location, online, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			position = EXCLUDED.position,
			name = EXCLUDED.name,
			title = EXCLUDED.title,
			bio = EXCLUDED.bio,
			skills = EXCLUDED.skills,
			interests = EXCLUDED.interests,
			experience_years = EXCLUDED.experience_years,
			location = EXCLUDED.location,
			online = EXCLUDED.online,
			updated_at = NOW()`)
	if err != nil {
		return fmt.Errorf("profile: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, c := range cands {
		if _, err := stmt.ExecContext(ctx,
			c.ID, i, c.Name, c.Title, c.Bio,
			pq.Array(nonNil(c.Skills)), pq.Array(nonNil(c.Interests)),
			c.ExperienceYears, c.Location, c.Online,
		); err != nil {
			return fmt.Errorf("profile: upsert %q: %w", c.ID, err)
		}
		if progress != nil {
			progress(i + 1)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("profile: commit: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PGStore) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded migrations to the database at dsn. When down
// is true every migration is rolled back instead. An up-to-date schema is
// not an error.
func Migrate(dsn string, down bool) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("profile: open postgres: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("profile: migration source: %w", err)
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("profile: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		db.Close()
		return fmt.Errorf("profile: migrate init: %w", err)
	}
	// Closes db as well.
	defer m.Close()

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("profile: migrate: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
