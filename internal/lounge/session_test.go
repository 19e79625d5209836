package lounge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"skipfleet/internal/models"
)

type staticTokenSource struct {
	token *oauth2.Token
	err   error
}

func (t staticTokenSource) Token() (*oauth2.Token, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.token, nil
}

type recordingHandler struct {
	mu     sync.Mutex
	states []models.PlaybackState
}

func (h *recordingHandler) HandleState(state models.PlaybackState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.states)
}

var upgrader = websocket.Upgrader{}

func newTestServer(t *testing.T, messages [][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, m); err != nil {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}))
}

func wsURL(httpURL string) string {
	u, _ := url.Parse(httpURL)
	u.Scheme = "ws"
	return u.String()
}

func TestConnectAndSubscribeDeliversStates(t *testing.T) {
	srv := newTestServer(t, [][]byte{
		[]byte(`{"video_id":"v1","cpn":"c1","state":1,"current_time":0,"playback_speed":1}`),
	})
	defer srv.Close()

	ts := staticTokenSource{token: &oauth2.Token{AccessToken: "tok"}}
	s := New("screen-1", wsURL(srv.URL), ts)

	require.NoError(t, s.Connect(context.Background()))
	require.True(t, s.Connected())

	handler := &recordingHandler{}
	sub, err := s.Subscribe(context.Background(), handler)
	require.NoError(t, err)

	<-sub.Done()
	require.Equal(t, 1, handler.count())
	require.Equal(t, "v1", handler.states[0].VideoID)
}

func TestConnectFailsUnavailableOnBadAuth(t *testing.T) {
	ts := staticTokenSource{err: assertErr("no token")}
	s := New("screen-1", "ws://127.0.0.1:0", ts)

	err := s.Connect(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, models.ErrUnavailable)
}

func TestSeekToRequiresConnection(t *testing.T) {
	ts := staticTokenSource{token: &oauth2.Token{AccessToken: "tok"}}
	s := New("screen-1", "ws://example.invalid", ts)

	err := s.SeekTo(context.Background(), 5.0)
	require.ErrorIs(t, err, models.ErrNotConnected)
}

func TestDisconnectMovesToClosed(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	ts := staticTokenSource{token: &oauth2.Token{AccessToken: "tok"}}
	s := New("screen-1", wsURL(srv.URL), ts)
	require.NoError(t, s.Connect(context.Background()))

	s.Disconnect()
	require.Equal(t, StateClosed, s.getState())
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error {
	return simpleErr(msg)
}
