package main

import (
	"context"
	"fmt"

	"github.com/kestrelops/venvorch/internal/definitions"
)

// SeedCmd loads a YAML seed file of cluster/environment definitions into
// the definitions database, for operators without access to whatever
// authoring tooling produces these rows in a larger deployment.
type SeedCmd struct {
	File string `arg:"" help:"Path to the YAML seed file to load." type:"existingfile"`
}

func (cmd *SeedCmd) Run(cli *CLI) error {
	seed, err := definitions.LoadSeedFile(cmd.File)
	if err != nil {
		return err
	}

	store, err := definitions.OpenSQLiteStore(cli.DBPath)
	if err != nil {
		return fmt.Errorf("seed: opening definitions store: %w", err)
	}
	defer store.Close()

	if err := store.Apply(context.Background(), seed); err != nil {
		return fmt.Errorf("seed: applying %s: %w", cmd.File, err)
	}

	fmt.Printf("seeded %d cluster(s) from %s\n", len(seed.Clusters), cmd.File)
	return nil
}
