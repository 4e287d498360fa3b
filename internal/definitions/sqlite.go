package definitions

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/kestrelops/venvorch/internal/orcherrors"
)

//go:embed db/schema.sql
var schemaSQL string

// SQLiteStore is a Store backed by a modernc.org/sqlite database. Schema
// setup runs the embedded schema.sql directly against the connection at
// open time — no migration framework, matching the teacher's own sqlite
// bootstrap pattern.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the sqlite database at path and
// applies the embedded schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("definitions: opening sqlite database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("definitions: applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetCluster loads a cluster definition and its environments, ordered by
// their recorded position.
func (s *SQLiteStore) GetCluster(ctx context.Context, id string) (*ClusterDef, error) {
	var def ClusterDef
	def.ID = id
	err := s.db.QueryRowContext(ctx, `SELECT name FROM clusters WHERE id = ?`, id).Scan(&def.Name)
	if err == sql.ErrNoRows {
		return nil, orcherrors.NewNotFound("cluster %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("definitions: loading cluster %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.kind, e.ports, e.access_info, e.image, e.template_xml, e.base_image_path
		FROM cluster_environments ce
		JOIN environments e ON e.id = ce.environment_id
		WHERE ce.cluster_id = ?
		ORDER BY ce.position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("definitions: loading environments for cluster %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var env EnvironmentDef
		var portsJSON string
		var image, templateXML, baseImagePath sql.NullString
		if err := rows.Scan(&env.ID, &env.Name, &env.Kind, &portsJSON, &env.AccessInfo, &image, &templateXML, &baseImagePath); err != nil {
			return nil, fmt.Errorf("definitions: scanning environment row: %w", err)
		}
		if err := json.Unmarshal([]byte(portsJSON), &env.InternalPorts); err != nil {
			return nil, fmt.Errorf("definitions: decoding ports for environment %s: %w", env.ID, err)
		}
		env.Image = image.String
		env.TemplateXML = templateXML.String
		env.BaseImagePath = baseImagePath.String
		def.Environments = append(def.Environments, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("definitions: iterating environments for cluster %s: %w", id, err)
	}
	return &def, nil
}

// ListDockerImageTags returns the distinct container images referenced by
// any environment definition, sorted and deduplicated.
func (s *SQLiteStore) ListDockerImageTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT image FROM environments WHERE kind = 'container' AND image IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("definitions: listing docker image tags: %w", err)
	}
	defer rows.Close()
	return collectSortedStrings(rows)
}

// ListVMImages returns the distinct base images referenced by any VM
// environment definition.
func (s *SQLiteStore) ListVMImages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT base_image_path FROM environments WHERE kind = 'vm' AND base_image_path IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("definitions: listing vm images: %w", err)
	}
	defer rows.Close()
	return collectSortedStrings(rows)
}

func collectSortedStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
