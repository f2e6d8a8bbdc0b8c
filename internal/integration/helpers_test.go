package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mentorlink/internal/app"
	"mentorlink/internal/auth"
	"mentorlink/internal/config"
	"mentorlink/internal/testutil"
	"mentorlink/pkg/types"
)

const (
	testSecret = "integration-secret"
	wait       = 2 * time.Second
)

type env struct {
	app      *app.Application
	baseURL  string
	verifier *auth.Verifier
}

// startServer boots the whole application on an ephemeral port with a
// sqlite file in a temp dir and seeds assignment A-1 for mentor_m/mentee_n.
func startServer(t *testing.T) *env {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Auth.JWTSecret = testSecret
	cfg.Database.Path = filepath.Join(t.TempDir(), "mentorlink.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0

	application, err := app.NewApplication(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	require.NoError(t, application.Store().CreateAssignment(context.Background(), &types.Assignment{
		ID:       "A-1",
		MentorID: "mentor_m",
		MenteeID: "mentee_n",
		Status:   "active",
	}))

	return &env{
		app:      application,
		baseURL:  "http://" + application.Addr(),
		verifier: auth.NewVerifier(testSecret),
	}
}

func (e *env) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := e.verifier.Issue(types.Identity{UserID: userID, Role: role, FirstName: userID}, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *env) connect(t *testing.T, userID, role string) *testutil.Client {
	t.Helper()
	client := testutil.NewClient(e.baseURL, e.token(t, userID, role))
	_, err := client.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func (e *env) join(t *testing.T, client *testutil.Client, assignmentID string) {
	t.Helper()
	require.NoError(t, client.Send(types.EventJoinAssignment, types.AssignmentRef{AssignmentID: assignmentID}))

	var joined types.AssignmentRef
	require.NoError(t, client.ReceiveEvent(types.EventJoinedAssignment, &joined, wait))
	require.Equal(t, assignmentID, joined.AssignmentID)
}

func (e *env) notify(t *testing.T, userID string, payload interface{}) bool {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"userId": userID, "payload": payload})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.baseURL+"/api/notifications", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token(t, "admin_1", types.RoleAdmin))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		Delivered bool `json:"delivered"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Delivered
}

// online is polled from require.Eventually, so it reports failures as
// "offline" instead of failing the test.
func (e *env) online(userID string) bool {
	resp, err := http.Get(e.baseURL + "/api/presence/" + userID)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var out struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Online
}
