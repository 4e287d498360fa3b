// Package environment implements the container and VM workload drivers:
// tagged variants sharing one lifecycle operation set, per the orchestrator's
// polymorphic-environment design (no class inheritance).
package environment

import (
	"context"

	"github.com/kestrelops/venvorch/internal/access"
	"github.com/kestrelops/venvorch/internal/envstatus"
)

// Resources is the resource-usage snapshot an environment reports.
type Resources struct {
	MemoryBytes uint64
	NetworkRx   uint64
	NetworkTx   uint64
}

// Add accumulates other into r, for summing member resources into a
// cluster or host total.
func (r *Resources) Add(other Resources) {
	r.MemoryBytes += other.MemoryBytes
	r.NetworkRx += other.NetworkRx
	r.NetworkTx += other.NetworkTx
}

// AccessInfo is the rendered, user-facing reach-this-environment payload.
type AccessInfo struct {
	IP     string
	Access string
}

// Instance is the shared operation set every environment variant implements.
type Instance interface {
	DisplayName() string
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
	Status() envstatus.Status
	AccessInfo() AccessInfo
	Resources() (Resources, error)
	Destroy(ctx context.Context)
	// PublishedPorts returns every host port this instance holds, so a
	// cluster destroy can release them all regardless of driver kind.
	PublishedPorts() []int
}

// portPairs builds the access.PortPair slice shared by both driver kinds.
func portPairs(internalPorts, publishedPorts []int) []access.PortPair {
	pairs := make([]access.PortPair, len(internalPorts))
	for i := range internalPorts {
		pairs[i] = access.PortPair{Internal: internalPorts[i], Published: publishedPorts[i]}
	}
	return pairs
}

// renderAccess is the shared access-template rendering path for both driver
// kinds.
func renderAccess(template, ip string, internalPorts, publishedPorts []int) string {
	return access.Render(template, ip, portPairs(internalPorts, publishedPorts))
}
