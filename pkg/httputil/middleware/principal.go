package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/zitadel/oidc/v3/pkg/client/rs"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/httputil"
)

// OIDCConfig holds the configuration for the OIDC provider.
type OIDCConfig struct {
	Issuer       string `json:"issuer"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	// ScopeClaim names the claim carrying the scope tokens, either as a
	// space-separated string or a list. Defaults to "scope".
	ScopeClaim string `json:"scope_claim"`
}

type oidcResourceServer struct {
	server rs.ResourceServer
	err    error
	once   sync.Once
}

func (o *oidcResourceServer) get(cfg *OIDCConfig) (rs.ResourceServer, error) {
	o.once.Do(func() {
		o.server, o.err = rs.NewResourceServerClientCredentials(
			context.Background(), cfg.Issuer, cfg.ClientID, cfg.ClientSecret)
	})
	return o.server, o.err
}

// Principal resolves the caller into an auth.Principal and stores it in the
// request context. A bearer token is introspected against the OIDC provider
// and its scope claim mapped to scope tokens; requests without a token
// proceed anonymously. cfg may be nil, which disables introspection.
func Principal(cfg *OIDCConfig, profiles []*auth.Profile) func(http.Handler) http.Handler {
	provider := &oidcResourceServer{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.Anonymous(profiles)

			authHeader := r.Header.Get("Authorization")
			if cfg != nil && strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				server, err := provider.get(cfg)
				if err != nil {
					httputil.Error(w, http.StatusServiceUnavailable, "authorization backend unavailable")
					return
				}
				token := strings.TrimSpace(authHeader[len("bearer "):])
				user, err := rs.Introspect[*oidc.IntrospectionResponse](r.Context(), server, token)
				if err != nil || user == nil || !user.Active {
					httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				principal = auth.NewPrincipal(scopesFromClaims(user, cfg.ScopeClaim), profiles)
			}

			ctx := context.WithValue(r.Context(), httputil.PrincipalCtxKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func scopesFromClaims(user *oidc.IntrospectionResponse, claim string) []string {
	if claim == "" || claim == "scope" {
		return user.Scope
	}
	switch v := user.Claims[claim].(type) {
	case string:
		return strings.Fields(v)
	case []any:
		scopes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
