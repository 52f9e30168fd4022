package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	principalKey contextKey = "principal"
)

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return nil, errors.New("no principal in context")
	}
	return p, nil
}

// GetOrgID is a helper to get the OrgID from the context's Principal.
func GetOrgID(ctx context.Context) (string, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "", err
	}
	return p.GetOrgID(), nil
}

// MustGetOrgID panics if org ID is missing (use only when middleware guarantees it).
func MustGetOrgID(ctx context.Context) string {
	oid, err := GetOrgID(ctx)
	if err != nil {
		panic(err)
	}
	return oid
}
