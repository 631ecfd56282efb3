package core

import (
	"context"

	"github.com/jllopis/crew/pkg/schema"
)

// Capability is an external, possibly slow and failing operation an agent may
// invoke. Implementations report failures with capability.Error kinds.
type Capability interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, argument string) (string, error)
}

// Agent answers a rendered task prompt, optionally constrained by a schema.
type Agent interface {
	ID() string
	Role() string
	Execute(ctx context.Context, prompt string, s *schema.Schema) (*Output, error)
}
