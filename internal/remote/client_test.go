package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storynest/storynest/internal/errors"
	"github.com/storynest/storynest/internal/models"
)

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   errors.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, errors.ErrAuth},
		{"not found", http.StatusNotFound, errors.ErrNotFound},
		{"server error", http.StatusInternalServerError, errors.ErrServer},
		{"bad gateway", http.StatusBadGateway, errors.ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "tok", time.Second)
			err := c.do(context.Background(), http.MethodGet, "/stories/x", nil, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "expected %s, got %v", tt.code, err)
		})
	}
}

func TestClientAuthExpiredCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	expired := 0
	c := NewClient(srv.URL, "stale-token", time.Second)
	c.SetAuthExpiredHandler(func() { expired++ })

	err := c.do(context.Background(), http.MethodGet, "/parents/p1", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAuth))
	assert.Equal(t, 1, expired)
}

func TestClientTransportFailureIsNetworkError(t *testing.T) {
	// A closed server guarantees a connection failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	err := c.do(context.Background(), http.MethodGet, "/stories", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123", time.Second)
	require.NoError(t, c.do(context.Background(), http.MethodGet, "/parents/p1", nil, nil))
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestStoryAPICreateAssignsServerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stories", r.URL.Path)

		var body storyPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Empty(t, body.ID, "the client must not dictate the server id")

		body.ID = "srv-1"
		body.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&body)
	}))
	defer srv.Close()

	api := NewStoryAPI(NewClient(srv.URL, "tok", time.Second))
	st, err := api.Create(context.Background(), &models.Story{
		ID:       "0f8fad5b-d9cb-469f-a165-70867728950e",
		ParentID: "parent-1",
		Title:    "小紅帽",
		Content:  "Once upon a time...",
		Source:   models.StorySourceImported,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ID("srv-1"), st.ID)
	assert.Equal(t, models.SyncStatusSynced, st.SyncStatus)
	assert.NotZero(t, st.CreatedAt)
}

func TestStoryAPIListFiltersByParent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stories", r.URL.Path)
		require.Equal(t, "parent-1", r.URL.Query().Get("parent_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"srv-1","parent_id":"parent-1","title":"小紅帽","content":"...","source":"imported"}]`))
	}))
	defer srv.Close()

	api := NewStoryAPI(NewClient(srv.URL, "tok", time.Second))
	stories, err := api.List(context.Background(), "parent-1")
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, models.ID("srv-1"), stories[0].ID)
	assert.Equal(t, models.SyncStatusSynced, stories[0].SyncStatus)
}

func TestQAAPIAskRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/qa/sessions/srv-sess-1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"question": {"id":"srv-q-1","session_id":"srv-sess-1","role":"child","content":"why?","sequence":1},
			"answer": {"id":"srv-a-1","session_id":"srv-sess-1","role":"assistant","content":"because","in_scope":true,"sequence":2}
		}`))
	}))
	defer srv.Close()

	api := NewQAAPI(NewClient(srv.URL, "tok", time.Second))
	question, answer, err := api.Ask(context.Background(), "srv-sess-1", &models.QAMessage{
		SessionID: "srv-sess-1",
		Role:      models.RoleChild,
		Content:   "why?",
		Sequence:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ID("srv-q-1"), question.ID)
	assert.Equal(t, models.RoleAssistant, answer.Role)
	require.NotNil(t, answer.InScope)
	assert.True(t, *answer.InScope)
}

func TestTimeConversion(t *testing.T) {
	assert.Equal(t, int64(0), parseTime(""))
	assert.Equal(t, int64(0), parseTime("garbage"))
	assert.Equal(t, "", formatTime(0))

	now := time.Now().Unix()
	assert.Equal(t, now, parseTime(formatTime(now)))
}
