package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveSocketPushesSnapshots(t *testing.T) {
	s, err := NewServer(":0", &fakeController{}, nil)
	require.NoError(t, err)
	s.pushInterval = 10 * time.Millisecond

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for i := 0; i < 3; i++ {
		var msg liveDataResponse
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, []string{"L-TIBI", "L-GAST"}, msg.Labels)
		assert.Len(t, msg.Data, 2)
	}
}
