package definitions

import (
	"context"
	"sort"

	"github.com/kestrelops/venvorch/internal/orcherrors"
)

// MemoryStore is an in-memory Store, used in tests and anywhere a full
// sqlite-backed store is unnecessary.
type MemoryStore struct {
	Clusters map[string]ClusterDef
}

// NewMemoryStore returns a MemoryStore seeded with the given clusters.
func NewMemoryStore(clusters ...ClusterDef) *MemoryStore {
	m := &MemoryStore{Clusters: make(map[string]ClusterDef, len(clusters))}
	for _, c := range clusters {
		m.Clusters[c.ID] = c
	}
	return m
}

func (m *MemoryStore) GetCluster(ctx context.Context, id string) (*ClusterDef, error) {
	c, ok := m.Clusters[id]
	if !ok {
		return nil, orcherrors.NewNotFound("cluster %s not found", id)
	}
	return &c, nil
}

func (m *MemoryStore) ListDockerImageTags(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, c := range m.Clusters {
		for _, e := range c.Environments {
			if e.Kind == "container" && e.Image != "" {
				seen[e.Image] = struct{}{}
			}
		}
	}
	return sortedKeys(seen), nil
}

func (m *MemoryStore) ListVMImages(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, c := range m.Clusters {
		for _, e := range c.Environments {
			if e.Kind == "vm" && e.BaseImagePath != "" {
				seen[e.BaseImagePath] = struct{}{}
			}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
