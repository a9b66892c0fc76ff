package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/qs3c/toolbox_server/config"
)

const githubAPIBase = "https://api.github.com"

// Profile 第三方登录得到的用户信息
type Profile struct {
	ProviderID string
	Email      string
	Name       string
}

type GithubOAuth struct {
	config  *oauth2.Config
	apiBase string
}

func NewGithubOAuth(cfg *config.GithubOAuthConfig) *GithubOAuth {
	return &GithubOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPIBase,
	}
}

// Enabled 是否配置了 GitHub 登录
func (g *GithubOAuth) Enabled() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != ""
}

// AuthURL 获取授权跳转地址
func (g *GithubOAuth) AuthURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange 用授权码换取 token 并拉取用户信息
func (g *GithubOAuth) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github: exchange code: %w", err)
	}
	return g.Profile(ctx, g.config.Client(ctx, token))
}

// Profile 使用已授权的 client 获取用户信息，没有公开邮箱时取主邮箱
func (g *GithubOAuth) Profile(ctx context.Context, client *http.Client) (*Profile, error) {
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := g.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}

	p := &Profile{
		ProviderID: strconv.FormatInt(user.ID, 10),
		Email:      user.Email,
		Name:       user.Name,
	}
	if p.Name == "" {
		p.Name = user.Login
	}

	if p.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := g.getJSON(ctx, client, "/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					p.Email = e.Email
					break
				}
			}
		}
	}
	return p, nil
}

func (g *GithubOAuth) getJSON(ctx context.Context, client *http.Client, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github: %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
