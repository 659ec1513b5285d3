package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeKeycloak is a minimal admin API double. Handlers are registered per
// path; the token endpoint counts exchanges so retry behavior is observable.
type fakeKeycloak struct {
	mux            *http.ServeMux
	server         *httptest.Server
	tokenExchanges atomic.Int32
	issuedToken    string
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()

	fk := &fakeKeycloak{mux: http.NewServeMux(), issuedToken: "token-1"}
	fk.mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "admin-cli", r.PostForm.Get("client_id"))

		n := fk.tokenExchanges.Add(1)
		fk.issuedToken = fmt.Sprintf("token-%d", n)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fk.issuedToken,
			"expires_in":   60,
		})
	})

	fk.server = httptest.NewServer(fk.mux)
	t.Cleanup(fk.server.Close)
	return fk
}

func (fk *fakeKeycloak) client() *AdminClient {
	return NewAdminClient(fk.server.URL, "master", "gestock", "admin-cli", "admin", "admin", zap.NewNop())
}

func (fk *fakeKeycloak) handle(path string, handler http.HandlerFunc) {
	fk.mux.HandleFunc(path, handler)
}

func TestAdminClientLazyTokenExchange(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+fk.issuedToken, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]UserRepresentation{{ID: "u1", Username: "alice"}})
	})

	client := fk.client()
	ctx := context.Background()

	users, err := client.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	_, err = client.ListUsers(ctx)
	require.NoError(t, err)

	// The token is exchanged once and reused for the second call.
	assert.Equal(t, int32(1), fk.tokenExchanges.Load())
}

func TestAdminClientRetriesOnceOn401(t *testing.T) {
	fk := newFakeKeycloak(t)

	var calls atomic.Int32
	fk.handle("/admin/realms/gestock/users", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]UserRepresentation{{ID: "u1", Username: "alice"}})
	})

	client := fk.client()

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)

	// First exchange served the rejected call, second the retry.
	assert.Equal(t, int32(2), fk.tokenExchanges.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestAdminClientSecond401Propagates(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := fk.client()

	_, err := client.ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	// Exactly one retry, never a loop.
	assert.Equal(t, int32(2), fk.tokenExchanges.Load())
}

func TestCreateUserReadsLocationHeader(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/users", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var user UserRepresentation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&user))
		assert.Equal(t, "bob", user.Username)

		w.Header().Set("Location", fk.server.URL+"/admin/realms/gestock/users/new-user-id")
		w.WriteHeader(http.StatusCreated)
	})

	client := fk.client()

	id, err := client.CreateUser(context.Background(), &UserRepresentation{Username: "bob", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "new-user-id", id)
}

func TestCreateUserConflict(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"errorMessage":"User exists with same email"}`)
	})

	client := fk.client()

	_, err := client.CreateUser(context.Background(), &UserRepresentation{Username: "bob"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestGetUserByEmail(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bob@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "true", r.URL.Query().Get("exact"))
		json.NewEncoder(w).Encode([]UserRepresentation{{ID: "u2", Email: "bob@example.com"}})
	})

	client := fk.client()

	user, err := client.GetUserByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)
}

func TestGetUserByEmailNotFound(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]UserRepresentation{})
	})

	client := fk.client()

	_, err := client.GetUserByEmail(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGetRealmRoleNotFound(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/roles/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := fk.client()

	_, err := client.GetRealmRole(context.Background(), "Inconnu")
	require.Error(t, err)
	assert.True(t, IsRoleNotFound(err))
}

func TestAssignRealmRoleResolvesThenPosts(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/roles/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RoleRepresentation{ID: "r1", Name: "Auditeur"})
	})

	var posted []RoleRepresentation
	fk.handle("/admin/realms/gestock/users/u1/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusNoContent)
	})

	client := fk.client()

	require.NoError(t, client.AssignRealmRole(context.Background(), "u1", "Auditeur"))
	require.Len(t, posted, 1)
	assert.Equal(t, "r1", posted[0].ID)
	assert.Equal(t, "Auditeur", posted[0].Name)
}

func TestRemoveRealmRoleUnknownRoleIsNoOp(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/roles/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := fk.client()

	assert.NoError(t, client.RemoveRealmRole(context.Background(), "u1", "Inconnu"))
}

func TestRemoveRealmRoleToleratesMissingMapping(t *testing.T) {
	fk := newFakeKeycloak(t)
	fk.handle("/admin/realms/gestock/roles/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RoleRepresentation{ID: "r1", Name: "Auditeur"})
	})
	fk.handle("/admin/realms/gestock/users/u1/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := fk.client()

	assert.NoError(t, client.RemoveRealmRole(context.Background(), "u1", "Auditeur"))
}

func TestSetUserEnabled(t *testing.T) {
	fk := newFakeKeycloak(t)

	var body map[string]interface{}
	fk.handle("/admin/realms/gestock/users/u1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	client := fk.client()

	require.NoError(t, client.SetUserEnabled(context.Background(), "u1", false))
	assert.Equal(t, false, body["enabled"])
}
