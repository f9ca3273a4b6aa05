package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPostsJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := New("minisplit-alerts").WithServer(srv.URL)
	require.NoError(t, n.Send("Emergency off", "All units commanded off"))

	assert.Equal(t, "minisplit-alerts", got["topic"])
	assert.Equal(t, "Emergency off", got["title"])
	assert.Equal(t, "All units commanded off", got["message"])
}

func TestSendNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New("t").WithServer(srv.URL).Send("x", "y")
	assert.ErrorContains(t, err, "non-success status: 429")
}

func TestUnconfiguredNotifierIsNoop(t *testing.T) {
	n := New("")
	assert.Nil(t, n)
	assert.NoError(t, n.Send("title", "message"))
}
