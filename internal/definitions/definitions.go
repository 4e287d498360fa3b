// Package definitions is the read-only boundary onto the persisted cluster
// and environment definitions. The persistence layer itself (schema
// migrations, the authoring UI backing it) is out of scope for the core
// runtime; this package only reads what operators have already defined.
package definitions

import "context"

// EnvironmentDef is one persisted environment definition.
type EnvironmentDef struct {
	ID            string
	Name          string
	Kind          string // "container" or "vm"
	InternalPorts []int
	AccessInfo    string

	// Container-kind payload.
	Image string

	// VM-kind payload.
	TemplateXML   string
	BaseImagePath string
}

// ClusterDef is one persisted cluster definition with its environments in
// declaration order.
type ClusterDef struct {
	ID           string
	Name         string
	Environments []EnvironmentDef
}

// Store is the read-only definitions boundary. NotFoundError (from
// internal/orcherrors) is returned for an unknown cluster ID.
type Store interface {
	GetCluster(ctx context.Context, id string) (*ClusterDef, error)
	ListDockerImageTags(ctx context.Context) ([]string, error)
	ListVMImages(ctx context.Context) ([]string, error)
}
