package jira

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/drewfead/sprintexport/internal/config"
)

// NewClientFromConfig builds a client from the jira section of the config.
func NewClientFromConfig(cfg config.JiraConfig) (*Client, error) {
	auth, err := AuthFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	cc := DefaultClientConfig()
	cc.BaseURL = cfg.BaseURL
	cc.Auth = auth
	cc.MaxRetries = cfg.MaxRetries
	if cfg.Timeout > 0 {
		cc.Timeout = cfg.Timeout
	}
	if cfg.RateLimit > 0 {
		cc.RateLimit = cfg.RateLimit
	}
	if cfg.RateBurst > 0 {
		cc.RateBurst = cfg.RateBurst
	}
	if cfg.MaxResults > 0 {
		cc.MaxResults = cfg.MaxResults
	}
	return NewClient(cc)
}

// AuthFromConfig selects the auth strategy named by cfg.Auth.Mode.
func AuthFromConfig(cfg config.JiraConfig) (Auth, error) {
	a := cfg.Auth
	switch strings.ToLower(a.Mode) {
	case "", config.AuthBasic:
		return BasicAuth{Email: a.Email, APIToken: a.APIToken}, nil
	case config.AuthBearer:
		return BearerToken{Token: a.Token}, nil
	case config.AuthConnect:
		var contextPath string
		if u, err := url.Parse(cfg.BaseURL); err == nil {
			contextPath = u.Path
		}
		return ConnectJWT{AppKey: a.AppKey, SharedSecret: a.SharedSecret, ContextPath: contextPath}, nil
	case config.AuthNone:
		return NoAuth{}, nil
	default:
		return nil, fmt.Errorf("unknown jira auth mode %q", a.Mode)
	}
}
