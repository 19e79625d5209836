// Package lounge implements the Lounge Session: a single persistent
// conversation with one remote device. It authenticates via an oauth2 token
// source, maintains a duplex websocket connection, surfaces playback-state
// updates to a caller-supplied handler, and accepts best-effort seek
// commands. The wire format of the device's lounge endpoint is treated as
// an implementation detail behind this package's public contract.
package lounge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"skipfleet/internal/models"
)

// State is the Lounge Session's connection state:
// UNLINKED -> LINKED -> CONNECTED -> SUBSCRIBED machine.
type State int

const (
	StateUnlinked State = iota
	StateLinked
	StateConnected
	StateSubscribed
	StateClosed
)

// StateHandler receives playback-state updates delivered in arrival order,
// at most once per update. The Playback Controller implements this
// interface and is injected on Subscribe, resolving the controller/session
// cyclic reference without either side holding a strong reference back.
type StateHandler interface {
	HandleState(state models.PlaybackState)
}

const (
	connectRetryDelay = 5 * time.Second
	connectMaxRetries = 2
	pingInterval      = 10 * time.Second
	pingTimeout       = 5 * time.Second
)

// Session is one Lounge Session for one device.
type Session struct {
	screenID    string
	endpoint    string
	tokenSource oauth2.TokenSource

	mu      sync.RWMutex
	state   State
	conn    *websocket.Conn
	handler StateHandler

	subMu  sync.Mutex
	subCtx context.Context
	subCxl context.CancelFunc
	subDone chan struct{}
}

// New constructs a Session for one device. endpoint is the device's lounge
// websocket URL; tokenSource supplies the bearer token used to authenticate
// the connection and is rotated by RefreshAuth.
func New(screenID, endpoint string, tokenSource oauth2.TokenSource) *Session {
	return &Session{
		screenID:    screenID,
		endpoint:    endpoint,
		tokenSource: tokenSource,
		state:       StateUnlinked,
	}
}

func (s *Session) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) Linked() bool {
	st := s.getState()
	return st == StateLinked || st == StateConnected || st == StateSubscribed
}

func (s *Session) Connected() bool {
	st := s.getState()
	return st == StateConnected || st == StateSubscribed
}

// IsAvailable reports whether the device currently answers to a liveness
// check. Absent a pinned wire protocol this degrades to "can we
// authenticate": it reports whether the token source currently yields a
// token, whatever the state of the connection.
func (s *Session) IsAvailable() bool {
	if _, err := s.tokenSource.Token(); err != nil {
		return false
	}
	return true
}

// RefreshAuth rotates the session's bearer token. Safe to call concurrently
// with Subscribe; a failure downgrades the session to UNLINKED.
func (s *Session) RefreshAuth(ctx context.Context) error {
	if _, err := s.tokenSource.Token(); err != nil {
		s.setState(StateUnlinked)
		return fmt.Errorf("refreshing auth for %s: %w", s.screenID, err)
	}
	if s.getState() == StateUnlinked {
		s.setState(StateLinked)
	}
	return nil
}

// Connect establishes the websocket connection with a bounded number of
// retries, separated by connectRetryDelay. It is idempotent: a call while
// already connected returns immediately.
func (s *Session) Connect(ctx context.Context) error {
	if s.Connected() {
		return nil
	}
	if !s.Linked() {
		if err := s.RefreshAuth(ctx); err != nil {
			return fmt.Errorf("%w: %v", models.ErrUnavailable, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= connectMaxRetries; attempt++ {
		conn, err := s.dial(ctx)
		if err == nil {
			s.mu.Lock()
			s.conn = conn
			s.state = StateConnected
			s.mu.Unlock()
			return nil
		}
		lastErr = err
		if attempt < connectMaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(connectRetryDelay):
			}
		}
	}
	return fmt.Errorf("connecting to %s: %w: %v", s.screenID, models.ErrUnavailable, lastErr)
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	token, err := s.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	header := map[string][]string{"Authorization": {"Bearer " + token.AccessToken}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	return conn, err
}

// Subscribe registers handler to receive playback-state updates and starts
// the read loop. It returns a Subscription whose Done channel closes when
// the subscription ends, locally or because the device closed it.
func (s *Session) Subscribe(ctx context.Context, handler StateHandler) (*Subscription, error) {
	if !s.Connected() {
		return nil, fmt.Errorf("subscribing for %s: %w", s.screenID, models.ErrNotConnected)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.subMu.Lock()
	s.handler = handler
	s.subCtx = subCtx
	s.subCxl = cancel
	s.subDone = done
	s.subMu.Unlock()

	s.setState(StateSubscribed)
	go s.readLoop(subCtx, done)

	return &Subscription{done: done, cancel: cancel}, nil
}

func (s *Session) readLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx, conn)
	go func() {
		<-pingCtx.Done()
		if ctx.Err() != nil {
			conn.SetReadDeadline(time.Now())
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("lounge %s: read error, downgrading to unlinked: %v", s.screenID, err)
				s.setState(StateUnlinked)
			}
			return
		}
		state, ok := parseStateMessage(msg)
		if !ok {
			continue
		}
		s.subMu.Lock()
		handler := s.handler
		s.subMu.Unlock()
		if handler != nil {
			handler.HandleState(state)
		}
	}
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingTimeout)); err != nil {
				return
			}
		}
	}
}

type wireState struct {
	VideoID       string  `json:"video_id"`
	CPN           string  `json:"cpn"`
	State         int     `json:"state"`
	CurrentTime   float64 `json:"current_time"`
	PlaybackSpeed float64 `json:"playback_speed"`
}

func parseStateMessage(data []byte) (models.PlaybackState, bool) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return models.PlaybackState{}, false
	}
	speed := w.PlaybackSpeed
	if speed <= 0 {
		speed = 1.0
	}
	return models.PlaybackState{
		VideoID:       w.VideoID,
		CPN:           w.CPN,
		State:         models.SessionState(w.State),
		CurrentTime:   w.CurrentTime,
		PlaybackSpeed: speed,
	}, true
}

// SeekTo issues a best-effort seek command. It fails with ErrNotConnected
// when the session is not currently linked.
func (s *Session) SeekTo(ctx context.Context, position float64) error {
	s.mu.RLock()
	conn := s.conn
	connected := s.state == StateConnected || s.state == StateSubscribed
	s.mu.RUnlock()
	if !connected || conn == nil {
		return fmt.Errorf("seeking for %s: %w", s.screenID, models.ErrNotConnected)
	}

	payload, err := json.Marshal(map[string]any{"command": "seekTo", "position": position})
	if err != nil {
		return fmt.Errorf("encoding seek command: %w", err)
	}

	s.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("seeking for %s: %w", s.screenID, err)
	}
	return nil
}

// Disconnect terminates any active subscription and releases the
// connection, moving the session to CLOSED.
func (s *Session) Disconnect() {
	s.subMu.Lock()
	if s.subCxl != nil {
		s.subCxl()
	}
	s.subMu.Unlock()

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = StateClosed
	s.mu.Unlock()
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	done   chan struct{}
	cancel context.CancelFunc
}

// Done closes when the subscription has terminated.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Cancel ends the subscription locally without closing the connection.
func (sub *Subscription) Cancel() {
	sub.cancel()
}
