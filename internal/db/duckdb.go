package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// ErrNoBuild is returned when a crate has never been built.
var ErrNoBuild = errors.New("no recorded build")

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_build_id START 1;`,

		`CREATE TABLE IF NOT EXISTS builds (
			id INTEGER PRIMARY KEY,
			crate TEXT NOT NULL,
			version TEXT NOT NULL,
			input_hash TEXT NOT NULL,
			built_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_crate ON builds (crate)`,

		`CREATE TABLE IF NOT EXISTS artifacts (
			build_id INTEGER NOT NULL REFERENCES builds(id),
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			hash TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_build ON artifacts (build_id)`,

		`CREATE TABLE IF NOT EXISTS items (
			build_id INTEGER NOT NULL REFERENCES builds(id),
			module TEXT NOT NULL,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_build ON items (build_id)`,

		`CREATE TABLE IF NOT EXISTS implementors (
			build_id INTEGER NOT NULL REFERENCES builds(id),
			trait_path TEXT NOT NULL,
			position INTEGER NOT NULL,
			fragment TEXT NOT NULL,
			text TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_implementors_trait ON implementors (trait_path)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Build operations ---

type Build struct {
	ID        int
	Crate     string
	Version   string
	InputHash string
	BuiltAt   time.Time
	Artifacts int
}

type Artifact struct {
	Path string
	Kind string
	Hash string
}

type Item struct {
	Crate       string
	Module      string
	Category    string
	Name        string
	Description string
}

type Implementor struct {
	Crate    string
	Trait    string
	Position int
	Fragment string
	Text     string
}

// BuildRecord is everything one crate build produced.
type BuildRecord struct {
	Crate        string
	Version      string
	InputHash    string
	Artifacts    []Artifact
	Items        []Item
	Implementors []Implementor
}

// RecordBuild stores a build. Items and implementors from the crate's
// earlier builds are replaced; builds and their artifacts are kept as
// history.
func (db *DB) RecordBuild(rec *BuildRecord) (*Build, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM items WHERE build_id IN (SELECT id FROM builds WHERE crate = ?)`,
		`DELETE FROM implementors WHERE build_id IN (SELECT id FROM builds WHERE crate = ?)`,
	} {
		if _, err := tx.Exec(q, rec.Crate); err != nil {
			return nil, fmt.Errorf("clearing previous build: %w", err)
		}
	}

	b := Build{Crate: rec.Crate, Version: rec.Version, InputHash: rec.InputHash, Artifacts: len(rec.Artifacts)}
	err = tx.QueryRow(
		`INSERT INTO builds (id, crate, version, input_hash) VALUES (nextval('seq_build_id'), ?, ?, ?)
		 RETURNING id, built_at`,
		rec.Crate, rec.Version, rec.InputHash,
	).Scan(&b.ID, &b.BuiltAt)
	if err != nil {
		return nil, fmt.Errorf("inserting build: %w", err)
	}

	for _, a := range rec.Artifacts {
		if _, err := tx.Exec(`INSERT INTO artifacts (build_id, path, kind, hash) VALUES (?, ?, ?, ?)`,
			b.ID, a.Path, a.Kind, a.Hash); err != nil {
			return nil, fmt.Errorf("inserting artifact %s: %w", a.Path, err)
		}
	}
	for _, it := range rec.Items {
		if _, err := tx.Exec(`INSERT INTO items (build_id, module, category, name, description) VALUES (?, ?, ?, ?, ?)`,
			b.ID, it.Module, it.Category, it.Name, it.Description); err != nil {
			return nil, fmt.Errorf("inserting item %s::%s: %w", it.Module, it.Name, err)
		}
	}
	for _, im := range rec.Implementors {
		if _, err := tx.Exec(`INSERT INTO implementors (build_id, trait_path, position, fragment, text) VALUES (?, ?, ?, ?, ?)`,
			b.ID, im.Trait, im.Position, im.Fragment, im.Text); err != nil {
			return nil, fmt.Errorf("inserting implementor of %s: %w", im.Trait, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing build: %w", err)
	}
	return &b, nil
}

const buildColumns = `b.id, b.crate, b.version, b.input_hash, b.built_at,
	(SELECT count(*) FROM artifacts a WHERE a.build_id = b.id)`

func scanBuild(row interface{ Scan(...any) error }) (*Build, error) {
	var b Build
	if err := row.Scan(&b.ID, &b.Crate, &b.Version, &b.InputHash, &b.BuiltAt, &b.Artifacts); err != nil {
		return nil, err
	}
	return &b, nil
}

// LatestBuild returns the crate's most recent build.
func (db *DB) LatestBuild(crate string) (*Build, error) {
	b, err := scanBuild(db.conn.QueryRow(
		`SELECT `+buildColumns+` FROM builds b WHERE b.crate = ?
		 ORDER BY b.built_at DESC, b.id DESC LIMIT 1`, crate))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w for %s", ErrNoBuild, crate)
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest build of %s: %w", crate, err)
	}
	return b, nil
}

// ListBuilds returns builds newest first. With latestOnly, each crate
// appears once.
func (db *DB) ListBuilds(latestOnly bool) ([]Build, error) {
	q := `SELECT ` + buildColumns + ` FROM builds b`
	if latestOnly {
		q += ` QUALIFY row_number() OVER (PARTITION BY b.crate ORDER BY b.built_at DESC, b.id DESC) = 1`
	}
	q += ` ORDER BY b.built_at DESC, b.id DESC`

	rows, err := db.conn.Query(q)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}

// Artifacts returns a build's artifacts ordered by path.
func (db *DB) Artifacts(buildID int) ([]Artifact, error) {
	rows, err := db.conn.Query(
		`SELECT path, kind, hash FROM artifacts WHERE build_id = ? ORDER BY path`, buildID)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Path, &a.Kind, &a.Hash); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Query operations ---

// FindItems matches sidebar entries by name, case-insensitively. Exact
// names sort first.
func (db *DB) FindItems(query string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(
		`SELECT b.crate, i.module, i.category, i.name, i.description
		 FROM items i JOIN builds b ON b.id = i.build_id
		 WHERE i.name ILIKE ? ESCAPE '\'
		 ORDER BY (lower(i.name) = lower(?)) DESC, length(i.name), i.module, i.name
		 LIMIT ?`,
		pattern, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Crate, &it.Module, &it.Category, &it.Name, &it.Description); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ImplementorsOf lists the recorded impls of a trait. trait is a full path
// (core::ops::Drop) or a bare name (Drop).
func (db *DB) ImplementorsOf(trait string) ([]Implementor, error) {
	rows, err := db.conn.Query(
		`SELECT b.crate, m.trait_path, m.position, m.fragment, m.text
		 FROM implementors m JOIN builds b ON b.id = m.build_id
		 WHERE m.trait_path = ? OR m.trait_path LIKE ? ESCAPE '\'
		 ORDER BY m.trait_path, b.crate, m.position`,
		trait, "%::"+escapeLike(trait),
	)
	if err != nil {
		return nil, fmt.Errorf("listing implementors: %w", err)
	}
	defer rows.Close()

	var out []Implementor
	for rows.Next() {
		var im Implementor
		if err := rows.Scan(&im.Crate, &im.Trait, &im.Position, &im.Fragment, &im.Text); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
