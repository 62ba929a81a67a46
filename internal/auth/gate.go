package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrForbidden is returned by the Check* helpers when the identity lacks
// the required permission or scope.
var ErrForbidden = errors.New("forbidden")

// ErrUnauthenticated is returned when no usable credential was presented.
var ErrUnauthenticated = errors.New("unauthenticated")

// PublicPaths never require authentication.
var PublicPaths = map[string]bool{
	"/health":     true,
	"/favicon.ico": true,
}

// Gate turns a bearer credential into a request-scoped Identity and
// exposes the check_access/check_write/check_admin helpers every tool
// uses.
type Gate struct {
	registry       *TokenRegistry
	bootstrapToken string
}

// NewGate builds a Gate backed by registry, treating bootstrapToken as
// the synthetic universal-admin credential.
func NewGate(registry *TokenRegistry, bootstrapToken string) *Gate {
	return &Gate{registry: registry, bootstrapToken: bootstrapToken}
}

// Authenticate resolves a bearer credential (from the Authorization
// header or a "?token=" query fallback, header taking precedence when
// both are present) to an Identity.
func (g *Gate) Authenticate(ctx context.Context, headerValue, queryValue string) (*Identity, error) {
	credential := extractBearer(headerValue)
	if credential == "" {
		credential = queryValue
	}
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	if credential == g.bootstrapToken {
		return &Identity{
			Name:        "bootstrap-admin",
			Permissions: []string{PermAdmin},
			SpaceIDs:    nil,
			HashPrefix:  "bootstrap",
		}, nil
	}

	tok, err := g.registry.Lookup(ctx, credential)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return &Identity{
		Name:        tok.Name,
		Permissions: tok.Permissions,
		SpaceIDs:    tok.SpaceIDs,
		HashPrefix:  tok.TruncatedHash(),
	}, nil
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

// CheckAccess enforces I8: the identity's scope must be empty (universal)
// or must contain spaceID.
func CheckAccess(identity *Identity, spaceID string) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if !identity.InScope(spaceID) {
		return ErrForbidden
	}
	return nil
}

// CheckWrite requires write or admin permission.
func CheckWrite(identity *Identity) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if !identity.CanWrite() {
		return ErrForbidden
	}
	return nil
}

// CheckAdmin requires admin permission.
func CheckAdmin(identity *Identity) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if !identity.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// IsPublicPath reports whether path is exempt from authentication.
func IsPublicPath(path string) bool {
	return PublicPaths[path]
}

// BearerFromRequest extracts the bearer credential source values from an
// inbound HTTP request, ready to hand to Authenticate.
func BearerFromRequest(req *http.Request) (headerValue, queryValue string) {
	return req.Header.Get("Authorization"), req.URL.Query().Get("token")
}
