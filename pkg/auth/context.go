package auth

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller of a request. Its subject is the
// account that pays for claims.
type Principal struct {
	Subject string
	Payer   contracts.Address
	Roles   []string
}

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, errors.New("no principal in context")
	}
	return p, nil
}
