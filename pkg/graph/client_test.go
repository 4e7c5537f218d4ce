package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig().WithToken("test-token").WithRetries(3, time.Millisecond)
	cfg.BaseURL = srv.URL
	cfg.RateLimit = 0
	return NewClient(cfg, nil)
}

func writeGraphError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func TestClient_GetUser(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/users/alice@example.com", r.URL.Path)
		assert.Equal(t, "id,userPrincipalName,displayName", r.URL.Query().Get("$select"))
		json.NewEncoder(w).Encode(User{ID: "u-1", UserPrincipalName: "alice@example.com"})
	})

	u, err := c.GetUser(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
}

func TestClient_GetUserNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeGraphError(w, http.StatusNotFound, "Request_ResourceNotFound", "Resource 'bob' does not exist")
	})

	_, err := c.GetUser(context.Background(), "bob")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "GetUser", gerr.Op)
}

func TestClient_ListCloudPCsFollowsNextLink(t *testing.T) {
	var srvURL string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []CloudPC{{ID: "pc-2", Status: "inGracePeriod"}},
			})
			return
		}
		assert.Equal(t, "userPrincipalName eq 'o''neil@example.com'", r.URL.Query().Get("$filter"))
		json.NewEncoder(w).Encode(map[string]any{
			"value":           []CloudPC{{ID: "pc-1", Status: "provisioned"}},
			"@odata.nextLink": srvURL + "/deviceManagement/virtualEndpoint/cloudPCs?page=2",
		})
	})
	srvURL = c.BaseURL()

	pcs, err := c.ListCloudPCsForUser(context.Background(), "o'neil@example.com")
	require.NoError(t, err)
	require.Len(t, pcs, 2)
	assert.Equal(t, "pc-1", pcs[0].ID)
	assert.Equal(t, "pc-2", pcs[1].ID)
}

func TestClient_PolicyIDsForGroup(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "assignments", r.URL.Query().Get("$expand"))
		w.Write([]byte(`{"value":[
			{"id":"pol-1","assignments":[{"id":"a1","target":{"groupId":"grp-a"}}]},
			{"id":"pol-2","assignments":[{"id":"a2","target":{"groupId":"GRP-B"}},{"id":"a3","target":{"groupId":"grp-a"}}]},
			{"id":"pol-3","assignments":[]}
		]}`))
	})

	ids, err := c.PolicyIDsForGroup(context.Background(), "grp-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"pol-1", "pol-2"}, ids)

	ids, err = c.PolicyIDsForGroup(context.Background(), "grp-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"pol-2"}, ids)
}

func TestClient_AddGroupMember(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/groups/grp-a/members/$ref", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, strings.HasSuffix(body["@odata.id"], "/directoryObjects/u-1"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.AddGroupMember(context.Background(), "grp-a", "u-1"))
}

func TestClient_AddGroupMemberAlreadyExists(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeGraphError(w, http.StatusBadRequest, "Request_BadRequest",
			"One or more added object references already exist for the following modified properties: 'members'.")
	})

	err := c.AddGroupMember(context.Background(), "grp-a", "u-1")
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
}

func TestClient_RemoveGroupMember(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/groups/grp-a/members/u-1/$ref", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.RemoveGroupMember(context.Background(), "grp-a", "u-1"))
}

func TestClient_EndGracePeriod(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/deviceManagement/virtualEndpoint/cloudPCs/pc-1/endGracePeriod", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.EndGracePeriod(context.Background(), "pc-1"))
}

func TestClient_RetryOnThrottle(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			writeGraphError(w, http.StatusTooManyRequests, "TooManyRequests", "slow down")
			return
		}
		json.NewEncoder(w).Encode(User{ID: "u-1"})
	})

	u, err := c.GetUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetUser(context.Background(), "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
	assert.Equal(t, int32(4), attempts.Load())
}

func TestClient_NoToken(t *testing.T) {
	c := NewClient(DefaultConfig(), nil)
	_, err := c.GetUser(context.Background(), "u-1")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestConfig_With(t *testing.T) {
	cfg := DefaultConfig().WithToken("tok").WithTimeout(5*time.Second).WithRetries(1, 2*time.Second)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
}

func TestHTTPError_Error(t *testing.T) {
	assert.Equal(t, "HTTP 404: NotFound: gone", (&HTTPError{StatusCode: 404, Code: "NotFound", Message: "gone"}).Error())
	assert.Equal(t, "HTTP 500: oops", (&HTTPError{StatusCode: 500, Body: "oops"}).Error())
	assert.Equal(t, "HTTP 502", (&HTTPError{StatusCode: 502}).Error())
}
