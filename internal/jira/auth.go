package jira

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth applies credentials to an outgoing request.
type Auth interface {
	Apply(req *http.Request) error
}

// NoAuth sends requests without credentials.
type NoAuth struct{}

func (NoAuth) Apply(*http.Request) error { return nil }

// BasicAuth is Atlassian-style Basic auth with an account email and API token.
type BasicAuth struct {
	Email    string
	APIToken string
}

// Apply adds the Basic auth header.
func (a BasicAuth) Apply(req *http.Request) error {
	if a.Email == "" || a.APIToken == "" {
		return nil
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Email + ":" + a.APIToken))
	req.Header.Set("Authorization", "Basic "+credentials)
	return nil
}

// BearerToken authenticates with a personal access token or OAuth token.
type BearerToken struct {
	Token string
}

// Apply adds the Bearer token header.
func (a BearerToken) Apply(req *http.Request) error {
	if a.Token == "" {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// connectTokenTTL is how long a Connect request token stays valid.
const connectTokenTTL = 3 * time.Minute

// ConnectJWT signs each request as an Atlassian Connect app: an HS256 JWT
// carrying the app key as issuer and a hash of the canonical request (qsh).
type ConnectJWT struct {
	AppKey       string
	SharedSecret string
	ContextPath  string           // Path prefix of the site, stripped before hashing
	Now          func() time.Time // nil means time.Now
}

// Apply signs the request and adds the JWT header.
func (a ConnectJWT) Apply(req *http.Request) error {
	if a.AppKey == "" || a.SharedSecret == "" {
		return fmt.Errorf("connect auth requires app key and shared secret")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	issued := now()

	claims := jwt.MapClaims{
		"iss": a.AppKey,
		"iat": issued.Unix(),
		"exp": issued.Add(connectTokenTTL).Unix(),
		"qsh": QueryStringHash(req.Method, req.URL, a.ContextPath),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.SharedSecret))
	if err != nil {
		return fmt.Errorf("sign connect token: %w", err)
	}
	req.Header.Set("Authorization", "JWT "+signed)
	return nil
}

// QueryStringHash computes the Connect qsh claim for a request:
// sha256 of METHOD&path&sorted-query, hex encoded.
func QueryStringHash(method string, u *url.URL, contextPath string) string {
	sum := sha256.Sum256([]byte(canonicalRequest(method, u, contextPath)))
	return hex.EncodeToString(sum[:])
}

func canonicalRequest(method string, u *url.URL, contextPath string) string {
	path := u.EscapedPath()
	if contextPath != "" {
		path = strings.TrimPrefix(path, strings.TrimRight(contextPath, "/"))
	}
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	path = strings.ReplaceAll(path, "&", "%26")

	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "jwt" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for i, v := range values {
			values[i] = percentEncode(v)
		}
		pairs = append(pairs, percentEncode(k)+"="+strings.Join(values, ","))
	}

	return strings.ToUpper(method) + "&" + path + "&" + strings.Join(pairs, "&")
}

// percentEncode is RFC 3986 encoding: spaces as %20, '~' left alone, '*' escaped.
func percentEncode(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	e = strings.ReplaceAll(e, "*", "%2A")
	return strings.ReplaceAll(e, "%7E", "~")
}
