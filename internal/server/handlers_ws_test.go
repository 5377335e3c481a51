package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) listen(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialWSStatus(t *testing.T, url string) int {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		return http.StatusSwitchingProtocols
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	return resp.StatusCode
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func TestListener_ReceivesVotesCastOverHTTP(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.createPoll(t, "q", "a", "b")
	base := env.listen(t)

	conn := dialWS(t, base+"/ws")
	initial := readFrame(t, conn)
	assert.Equal(t, uint64(0), initial.TotalVotes())

	rec := env.do(t, http.MethodPost, "/api/votes", `{"poll_id":1,"option_id":2,"voter_id":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	update := readFrame(t, conn)
	assert.Equal(t, domain.PollID(1), update.ID)
	assert.Equal(t, uint64(1), update.Options[1].Votes)
	assert.Equal(t, []string{"alice"}, update.Voters)
}

func TestListener_SeesPollsCreatedAfterConnecting(t *testing.T) {
	env := newTestEnv(t, testConfig())
	base := env.listen(t)

	conn := dialWS(t, base+"/ws")
	require.Eventually(t, func() bool { return env.hub.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	rec := env.do(t, http.MethodPost, "/api/polls", `{"question":"new","options":["x"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "new", readFrame(t, conn).Question)
}

func TestListener_SinglePollFilter(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.createPoll(t, "watched", "a")
	env.createPoll(t, "other", "a")
	base := env.listen(t)

	conn := dialWS(t, base+"/ws/polls/1")
	assert.Equal(t, "watched", readFrame(t, conn).Question)

	env.do(t, http.MethodPost, "/api/votes", `{"poll_id":2,"option_id":1,"voter_id":"x"}`)
	env.do(t, http.MethodPost, "/api/votes", `{"poll_id":1,"option_id":1,"voter_id":"y"}`)

	update := readFrame(t, conn)
	assert.Equal(t, domain.PollID(1), update.ID)
	assert.Equal(t, []string{"y"}, update.Voters)
}

func TestListener_UnknownPollIs404(t *testing.T) {
	env := newTestEnv(t, testConfig())
	base := env.listen(t)

	assert.Equal(t, http.StatusNotFound, dialWSStatus(t, base+"/ws/polls/99"))
	assert.Equal(t, 0, env.srv.limits.Current())
}

func TestListener_PerIPLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxListenersPerIP = 1
	env := newTestEnv(t, cfg)
	base := env.listen(t)

	first := dialWS(t, base+"/ws")
	require.Eventually(t, func() bool { return env.srv.limits.Current() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, http.StatusTooManyRequests, dialWSStatus(t, base+"/ws"))

	require.NoError(t, first.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	require.Eventually(t, func() bool { return env.srv.limits.Current() == 0 }, 2*time.Second, time.Millisecond)

	assert.Equal(t, http.StatusSwitchingProtocols, dialWSStatus(t, base+"/ws"))
}

func TestListener_GlobalLimitIsUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.MaxListeners = 1
	env := newTestEnv(t, cfg)
	base := env.listen(t)

	dialWS(t, base+"/ws")
	require.Eventually(t, func() bool { return env.srv.limits.Current() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, http.StatusServiceUnavailable, dialWSStatus(t, base+"/ws"))
}

func TestListener_ConnectRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ListenerConnectRate = 0.001
	cfg.ListenerConnectBurst = 1
	env := newTestEnv(t, cfg)
	base := env.listen(t)

	dialWS(t, base+"/ws")

	assert.Equal(t, http.StatusTooManyRequests, dialWSStatus(t, base+"/ws"))
}

func TestListener_HubStopClosesWithGoingAway(t *testing.T) {
	env := newTestEnv(t, testConfig())
	base := env.listen(t)

	conn := dialWS(t, base+"/ws")
	require.Eventually(t, func() bool { return env.hub.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	env.hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	require.Eventually(t, func() bool { return env.srv.limits.Current() == 0 }, 2*time.Second, time.Millisecond)
}

func TestListener_RejectsForeignOriginInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	cfg.AllowedOrigins = []string{"https://polls.example.com"}
	env := newTestEnv(t, cfg)
	base := env.listen(t)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://polls.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws", header)
	require.NoError(t, err)
	conn.Close()
}
