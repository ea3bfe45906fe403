package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens map[string]string

func (s staticTokens) Parse(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

func TestServeWSStreamsBusinessEvents(t *testing.T) {
	hub, _ := startHub(t)
	mux := http.NewServeMux()
	NewHandler(hub, staticTokens{"tok-a": "biz-a"}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/scans"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer tok-a")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connections(context.Background()) == 1 }, 2*time.Second, 10*time.Millisecond)

	payload, err := json.Marshal(map[string]string{"kind": "scan"})
	require.NoError(t, err)
	require.NoError(t, hub.Broadcast(context.Background(), "biz-b", []byte(`{"kind":"other"}`)))
	require.NoError(t, hub.Broadcast(context.Background(), "biz-a", payload))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"scan"}`, string(msg))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections(context.Background()) == 0 }, 2*time.Second, 10*time.Millisecond)
}
