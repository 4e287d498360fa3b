package environment

import (
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// ImageChecker verifies a container image reference exists before a
// ContainerInstance starts, so a missing image is classified as
// orcherrors.DockerCauseImageNotFound before the runtime ever attempts to
// create the container.
type ImageChecker interface {
	Exists(image string) error
}

// RegistryImageChecker checks image existence against the real registry
// named by the reference, using an unauthenticated HEAD request.
type RegistryImageChecker struct{}

func (RegistryImageChecker) Exists(image string) error {
	ref, err := name.ParseReference(image)
	if err != nil {
		return err
	}
	_, err = remote.Head(ref)
	return err
}
