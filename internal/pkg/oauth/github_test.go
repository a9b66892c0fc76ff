package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/toolbox_server/config"
)

func TestGithubOAuth_AuthURL(t *testing.T) {
	g := NewGithubOAuth(&config.GithubOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:8080/api/v1/auth/github/callback",
	})

	assert.True(t, g.Enabled())
	u := g.AuthURL("state-123")
	assert.True(t, strings.HasPrefix(u, "https://github.com/login/oauth/authorize"))
	assert.Contains(t, u, "client_id=client-id")
	assert.Contains(t, u, "state=state-123")
	assert.Contains(t, u, "scope=user%3Aemail")

	assert.False(t, NewGithubOAuth(&config.GithubOAuthConfig{}).Enabled())
}

func TestGithubOAuth_Profile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/user":
			w.Write([]byte(`{"id":42,"login":"octocat","email":"","name":""}`))
		case "/user/emails":
			w.Write([]byte(`[{"email":"other@example.com","primary":false,"verified":true},{"email":"octo@example.com","primary":true,"verified":true}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	g := NewGithubOAuth(&config.GithubOAuthConfig{ClientID: "id", ClientSecret: "secret"})
	g.apiBase = server.URL

	p, err := g.Profile(context.Background(), server.Client())
	require.NoError(t, err)
	assert.Equal(t, "42", p.ProviderID)
	assert.Equal(t, "octocat", p.Name)
	assert.Equal(t, "octo@example.com", p.Email)
}

func TestGithubOAuth_ProfileError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer server.Close()

	g := NewGithubOAuth(&config.GithubOAuthConfig{})
	g.apiBase = server.URL

	_, err := g.Profile(context.Background(), server.Client())
	assert.ErrorContains(t, err, "401")
}
