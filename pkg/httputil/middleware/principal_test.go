package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/httputil"
)

func TestPrincipalAnonymous(t *testing.T) {
	var got *auth.Principal
	handler := Principal(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := httputil.Principal(r)
		require.True(t, ok)
		got = p
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.False(t, got.HasScope("CITY/ADMIN"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrincipalIgnoresBearerWithoutConfig(t *testing.T) {
	var called bool
	handler := Principal(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		p, ok := httputil.Principal(r)
		require.True(t, ok)
		assert.Equal(t, "scopes []", p.String())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestPrincipalActivatesProfiles(t *testing.T) {
	profiles := []*auth.Profile{{Name: "keeper", Scopes: []string{"CITY/KEEPER"}}}

	handler := Principal(nil, profiles)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := httputil.Principal(r)
		require.True(t, ok)
		// Anonymous callers never satisfy scoped profiles.
		assert.Empty(t, p.ActiveProfiles("city", "parks"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestScopesFromClaims(t *testing.T) {
	user := &oidc.IntrospectionResponse{
		Active: true,
		Scope:  oidc.SpaceDelimitedArray{"read", "write"},
		Claims: map[string]any{
			"roles":  []any{"a", "b", 3},
			"single": "x y",
		},
	}

	assert.Equal(t, []string{"read", "write"}, scopesFromClaims(user, ""))
	assert.Equal(t, []string{"read", "write"}, scopesFromClaims(user, "scope"))
	assert.Equal(t, []string{"a", "b"}, scopesFromClaims(user, "roles"))
	assert.Equal(t, []string{"x", "y"}, scopesFromClaims(user, "single"))
	assert.Empty(t, scopesFromClaims(user, "missing"))
}
