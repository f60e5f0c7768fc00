package jira

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/sprintexport/internal/config"
	"github.com/drewfead/sprintexport/internal/ticket"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*ClientConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cc := DefaultClientConfig()
	cc.BaseURL = srv.URL
	cc.RateLimit = 1000
	cc.RateBurst = 100
	for _, m := range mutate {
		m(cc)
	}
	c, err := NewClient(cc)
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(&ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{BaseURL: "not a url"})
	assert.Error(t, err)

	c, err := NewClient(&ClientConfig{BaseURL: "https://acme.atlassian.net/", MaxResults: 500})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.atlassian.net", c.BaseURL())
	assert.Equal(t, MaxResultsLimit, c.MaxResults())
	assert.Equal(t, "Jira", c.Name())
}

func TestListSprintIssueKeys(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/agile/1.0/sprint/42/issue", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "key", r.URL.Query().Get("fields"))
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("dev@acme.test:tok")), r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{
			"total":  2,
			"issues": []map[string]string{{"key": "A-2"}, {"key": "A-1"}},
		})
	}, func(cc *ClientConfig) {
		cc.Auth = BasicAuth{Email: "dev@acme.test", APIToken: "tok"}
	})

	keys, err := c.ListSprintIssueKeys(context.Background(), " 42 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-2", "A-1"}, keys)
}

func TestListSprintIssueKeysErrors(t *testing.T) {
	t.Run("Status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"errorMessages":["Sprint does not exist"]}`, http.StatusNotFound)
		})
		_, err := c.ListSprintIssueKeys(context.Background(), "9")
		ue, ok := AsUpstream(err)
		require.True(t, ok, "expected UpstreamError, got %v", err)
		assert.Equal(t, CallListSprintIssueKeys, ue.Call)
		assert.Equal(t, http.StatusNotFound, ue.StatusCode)
		assert.Contains(t, ue.Error(), "Sprint does not exist")
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "<html>login</html>")
		})
		_, err := c.ListSprintIssueKeys(context.Background(), "9")
		ue, ok := AsUpstream(err)
		require.True(t, ok)
		assert.Equal(t, CallListSprintIssueKeys, ue.Call)
		assert.Zero(t, ue.StatusCode)
	})

	t.Run("MissingIssues", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"total": 0}`)
		})
		_, err := c.ListSprintIssueKeys(context.Background(), "9")
		_, ok := AsUpstream(err)
		assert.True(t, ok)
	})

	t.Run("EmptySprintIsNotAnError", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"total": 0, "issues": []}`)
		})
		keys, err := c.ListSprintIssueKeys(context.Background(), "9")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestSearchIssuesWithSubtasksEmptyKeysSkipsCall(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	issues, err := c.SearchIssuesWithSubtasks(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, issues)
	assert.Zero(t, calls.Load())
}

func TestSearchIssuesWithSubtasks(t *testing.T) {
	site := "https://x.atlassian.net/rest/api/3/issue/"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/3/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key IN (A-1,A-2) OR parent IN (A-1,A-2)", body.JQL)
		assert.Equal(t, []string{"summary", "parent", "subtasks"}, body.Fields)
		assert.Equal(t, []string{"subtasks"}, body.Expand)
		assert.Equal(t, 100, body.MaxResults)

		io.WriteString(w, `{"total": 3, "issues": [
			{"key": "A-1", "self": "`+site+`1", "fields": {"summary": "Fix bug"}},
			{"key": "A-2", "self": "`+site+`2", "fields": {"summary": "Add feature", "subtasks": [
				{"key": "A-3", "self": "`+site+`3", "fields": {"summary": "Add tests"}}
			]}},
			{"key": "A-3", "self": "`+site+`3", "fields": {"summary": "Add tests", "parent": {"key": "A-2"}}}
		]}`)
	})

	issues, err := c.SearchIssuesWithSubtasks(context.Background(), []string{"A-1", "A-2"})
	require.NoError(t, err)

	want := []ticket.Issue{
		{Key: "A-1", Summary: "Fix bug", Self: site + "1"},
		{Key: "A-2", Summary: "Add feature", Self: site + "2", Subtasks: []ticket.Subtask{
			{Key: "A-3", Summary: "Add tests", Self: site + "3"},
		}},
	}
	assert.Equal(t, want, issues)
}

func TestSearchKeepsSubtaskWhoseParentIsNotReturned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"issues": [
			{"key": "B-5", "self": "https://h/rest/api/3/issue/5", "fields": {"summary": "orphan", "parent": {"key": "B-1"}}}
		]}`)
	})

	issues, err := c.SearchIssuesWithSubtasks(context.Background(), []string{"B-5"})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "B-1", issues[0].ParentKey)
}

func TestSearchRejectsInvalidKeys(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.SearchIssuesWithSubtasks(context.Background(), []string{"A-1", "A-2) OR project = SECRET"})
	ue, ok := AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, CallSearchIssuesWithSubtasks, ue.Call)
	assert.Zero(t, calls.Load())
}

func TestSearchStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := c.SearchIssuesWithSubtasks(context.Background(), []string{"A-1"})
	ue, ok := AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, CallSearchIssuesWithSubtasks, ue.Call)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.False(t, ue.Retryable())
}

func TestRetries(t *testing.T) {
	flaky := func(failures int32) (http.HandlerFunc, *atomic.Int32) {
		var calls atomic.Int32
		return func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= failures {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			io.WriteString(w, `{"issues": [{"key": "R-1"}]}`)
		}, &calls
	}

	t.Run("DisabledByDefault", func(t *testing.T) {
		h, calls := flaky(1)
		c := newTestClient(t, h)
		_, err := c.ListSprintIssueKeys(context.Background(), "1")
		ue, ok := AsUpstream(err)
		require.True(t, ok)
		assert.True(t, ue.Retryable())
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("RecoversWithinBudget", func(t *testing.T) {
		h, calls := flaky(2)
		c := newTestClient(t, h, func(cc *ClientConfig) { cc.MaxRetries = 2 })
		keys, err := c.ListSprintIssueKeys(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, []string{"R-1"}, keys)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("ClientErrorsAreNotRetried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}, func(cc *ClientConfig) { cc.MaxRetries = 3 })
		_, err := c.ListSprintIssueKeys(context.Background(), "1")
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestResolveSprint(t *testing.T) {
	sprintsFor := func(sprints string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/rest/agile/1.0/board":
				assert.Equal(t, "PROJ", r.URL.Query().Get("projectKeyOrId"))
				io.WriteString(w, `{"values": [{"id": 7, "name": "PROJ board"}, {"id": 8}]}`)
			case "/rest/agile/1.0/board/7/sprint":
				assert.Equal(t, "active,future", r.URL.Query().Get("state"))
				io.WriteString(w, `{"values": `+sprints+`}`)
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		}
	}

	t.Run("PrefersFuture", func(t *testing.T) {
		c := newTestClient(t, sprintsFor(`[{"id": 1, "state": "active"}, {"id": 2, "state": "future"}, {"id": 3, "state": "future"}]`))
		s, err := c.ResolveSprint(context.Background(), "PROJ")
		require.NoError(t, err)
		assert.Equal(t, 2, s.ID)
	})

	t.Run("FallsBackToActive", func(t *testing.T) {
		c := newTestClient(t, sprintsFor(`[{"id": 1, "state": "active", "name": "Sprint 1"}]`))
		s, err := c.ResolveSprint(context.Background(), "PROJ")
		require.NoError(t, err)
		assert.Equal(t, 1, s.ID)
		assert.Equal(t, "Sprint 1", s.Name)
	})

	t.Run("NoSprint", func(t *testing.T) {
		c := newTestClient(t, sprintsFor(`[]`))
		_, err := c.ResolveSprint(context.Background(), "PROJ")
		assert.True(t, errors.Is(err, ErrNoSprint))
	})

	t.Run("NoBoards", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"values": []}`)
		})
		_, err := c.ResolveSprint(context.Background(), "PROJ")
		assert.True(t, errors.Is(err, ErrNoSprint))
	})
}

func TestGetSprint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/agile/1.0/sprint/42", r.URL.Path)
		io.WriteString(w, `{"id": 42, "name": "Sprint 42", "state": "active"}`)
	})
	s, err := c.GetSprint(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, &ticket.Sprint{ID: 42, Name: "Sprint 42", State: "active"}, s)
}

func TestBuildJQL(t *testing.T) {
	jql, err := BuildJQL([]string{"A-1"})
	require.NoError(t, err)
	assert.Equal(t, "key IN (A-1) OR parent IN (A-1)", jql)

	_, err = BuildJQL([]string{"A-1", ""})
	assert.Error(t, err)
}

func TestConnectJWT(t *testing.T) {
	now := time.Unix(1700000000, 0)
	auth := ConnectJWT{
		AppKey:       "sprint-exporter",
		SharedSecret: "shh",
		ContextPath:  "/jira",
		Now:          func() time.Time { return now },
	}

	u, err := url.Parse("https://h.example/jira/rest/agile/1.0/board?projectKeyOrId=PROJ&state=active,future")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	require.NoError(t, err)
	require.NoError(t, auth.Apply(req))

	header := req.Header.Get("Authorization")
	require.Contains(t, header, "JWT ")

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(header[len("JWT "):], claims, func(*jwt.Token) (any, error) {
		return []byte("shh"), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)

	canonical := "GET&/rest/agile/1.0/board&projectKeyOrId=PROJ&state=active%2Cfuture"
	sum := sha256.Sum256([]byte(canonical))
	assert.Equal(t, "sprint-exporter", claims["iss"])
	assert.Equal(t, hex.EncodeToString(sum[:]), claims["qsh"])

	assert.Error(t, ConnectJWT{}.Apply(req))
}

func TestAuthFromConfig(t *testing.T) {
	a, err := AuthFromConfig(config.JiraConfig{Auth: config.AuthConfig{Mode: "bearer", Token: "pat"}})
	require.NoError(t, err)
	assert.Equal(t, BearerToken{Token: "pat"}, a)

	a, err = AuthFromConfig(config.JiraConfig{
		BaseURL: "https://h.example/jira",
		Auth:    config.AuthConfig{Mode: "connect", AppKey: "k", SharedSecret: "s"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/jira", a.(ConnectJWT).ContextPath)

	_, err = AuthFromConfig(config.JiraConfig{Auth: config.AuthConfig{Mode: "ntlm"}})
	assert.Error(t, err)
}
