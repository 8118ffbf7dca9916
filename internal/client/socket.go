package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"workhub/pkg/retry"

	"github.com/gorilla/websocket"
)

// SocketURL maps an http(s) API base to the ws(s) realtime endpoint.
func SocketURL(apiBase, path string) string {
	u := strings.TrimRight(apiBase, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + path
}

// socket is one InitSocket lifetime, across reconnects.
type socket struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

// setConn installs conn unless the socket was torn down meanwhile.
func (k *socket) setConn(ctx context.Context, conn *websocket.Conn) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ctx.Err() != nil {
		_ = conn.Close()
		return false
	}
	k.conn = conn
	return true
}

func (k *socket) shutdown() {
	k.cancel()
	k.mu.Lock()
	if k.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = k.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = k.conn.Close()
	}
	k.mu.Unlock()
	<-k.done
}

// InitSocket connects to the realtime gateway with the stored token. Any
// previous connection is torn down first. The first dial is synchronous;
// after that the connection is read in the background and redialled with
// backoff until ctx ends, DisconnectSocket is called or the gateway rejects
// the token.
func (s *Store) InitSocket(ctx context.Context) error {
	s.DisconnectSocket()

	token := s.Snapshot().Auth.Token
	if token == "" {
		return ErrNotAuthenticated
	}

	sockCtx, cancel := context.WithCancel(ctx)
	conn, err := s.dialWithRetry(sockCtx, token)
	if err != nil {
		cancel()
		return err
	}

	sock := &socket{cancel: cancel, done: make(chan struct{}), conn: conn}
	s.sockMu.Lock()
	prev := s.sock
	s.sock = sock
	s.sockMu.Unlock()
	if prev != nil {
		prev.shutdown()
	}

	go s.runSocket(sockCtx, sock, token)
	return nil
}

// DisconnectSocket closes the connection and resets the websocket slice.
func (s *Store) DisconnectSocket() {
	s.sockMu.Lock()
	sock := s.sock
	s.sock = nil
	s.sockMu.Unlock()

	if sock != nil {
		sock.shutdown()
	}
	s.update(func(st *State) {
		st.Websocket = WebsocketState{}
	})
}

func (s *Store) runSocket(ctx context.Context, sock *socket, token string) {
	defer close(sock.done)

	sock.mu.Lock()
	conn := sock.conn
	sock.mu.Unlock()

	for {
		err := s.readFrames(conn)
		_ = conn.Close()
		s.SetSocketConnected(false)
		if ctx.Err() != nil {
			return
		}
		s.logger.Infow("realtime connection lost, reconnecting", "error", err)

		next, err := s.dialWithRetry(ctx, token)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warnw("giving up on realtime connection", "error", err)
			}
			return
		}
		if !sock.setConn(ctx, next) {
			return
		}
		conn = next
	}
}

func (s *Store) readFrames(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := DecodeFrame(data)
		if err != nil {
			s.logger.Warnw("dropping realtime frame", "error", err)
			continue
		}
		s.Apply(ev)
	}
}

func (s *Store) dialWithRetry(ctx context.Context, token string) (*websocket.Conn, error) {
	cfg := s.reconnect
	if cfg.Notify == nil {
		cfg.Notify = func(attempt int, err error, wait time.Duration) {
			s.logger.Debugw("realtime dial failed", "attempt", attempt, "wait", wait, "error", err)
		}
	}
	return retry.Value(ctx, cfg, func(ctx context.Context) (*websocket.Conn, error) {
		return s.dial(ctx, token)
	})
}

// dial fails permanently on 401 so the retry loop stops there.
func (s *Store) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := s.dialer.DialContext(ctx, s.socketURL, header)
	if err == nil {
		return conn, nil
	}
	if resp == nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	apiErr := decodeAPIError(resp.StatusCode, body)
	if errors.Is(apiErr, ErrUnauthorized) {
		return nil, retry.Permanent(apiErr)
	}
	return nil, apiErr
}
