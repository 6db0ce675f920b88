package main

import (
	"context"

	"github.com/billbuddy/backend/internal/domain"
)

// passthroughVerifier stands in for the external identity provider: it
// accepts any non-empty bearer token and uses it as the user ID.
// Production deployments replace this with the IdP's token verifier.
type passthroughVerifier struct{}

func (passthroughVerifier) VerifyToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrUnauthorized
	}
	return token, nil
}

func newTokenVerifier() domain.TokenVerifier {
	return passthroughVerifier{}
}
