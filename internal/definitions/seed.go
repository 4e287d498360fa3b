package definitions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is a YAML document describing clusters and their environments,
// for loading definitions without the excluded authoring UI — an operator
// hand-writes this file and seeds the definitions store from it.
type SeedFile struct {
	Clusters []SeedCluster `yaml:"clusters"`
}

// SeedCluster is one cluster definition in a seed file.
type SeedCluster struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Environments []SeedEnvironment `yaml:"environments"`
}

// SeedEnvironment is one environment definition in a seed file.
type SeedEnvironment struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	Ports         []int  `yaml:"ports"`
	AccessInfo    string `yaml:"access_info"`
	Image         string `yaml:"image,omitempty"`
	TemplateXML   string `yaml:"template_xml,omitempty"`
	BaseImagePath string `yaml:"base_image_path,omitempty"`
}

// LoadSeedFile reads and parses a seed file at path.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("definitions: reading seed file %s: %w", path, err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("definitions: parsing seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply inserts every cluster/environment in seed into the store, replacing
// any existing rows with the same IDs.
func (s *SQLiteStore) Apply(ctx context.Context, seed *SeedFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("definitions: beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range seed.Clusters {
		if err := applyCluster(ctx, tx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func applyCluster(ctx context.Context, tx *sql.Tx, c SeedCluster) error {
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO clusters (id, name) VALUES (?, ?)`, c.ID, c.Name); err != nil {
		return fmt.Errorf("definitions: seeding cluster %s: %w", c.ID, err)
	}
	for position, env := range c.Environments {
		portsJSON, err := json.Marshal(env.Ports)
		if err != nil {
			return fmt.Errorf("definitions: encoding ports for environment %s: %w", env.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO environments (id, name, kind, ports, access_info, image, template_xml, base_image_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, env.ID, env.Name, env.Kind, string(portsJSON), env.AccessInfo, nullIfEmpty(env.Image), nullIfEmpty(env.TemplateXML), nullIfEmpty(env.BaseImagePath))
		if err != nil {
			return fmt.Errorf("definitions: seeding environment %s: %w", env.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO cluster_environments (cluster_id, environment_id, position) VALUES (?, ?, ?)
		`, c.ID, env.ID, position)
		if err != nil {
			return fmt.Errorf("definitions: linking environment %s to cluster %s: %w", env.ID, c.ID, err)
		}
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
