package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
	"workhub/internal/infrastructure/monitoring"
	"workhub/pkg/config"
	apperrors "workhub/pkg/errors"
	"workhub/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	// AllowedOrigins holds exact origins; "*" allows any. Requests without
	// an Origin header are always allowed.
	AllowedOrigins []string
	// MembershipCacheTTL caches handshake membership lookups per user;
	// zero disables the cache.
	MembershipCacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		PingInterval:   25 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 64 * 1024,
		AllowedOrigins: []string{"*"},
	}
}

// ConfigFrom reads the realtime and auth sections of the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		PingInterval:   cfg.Realtime.PingInterval,
		PongTimeout:    cfg.Realtime.PongTimeout,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		SendBuffer:     cfg.Realtime.SendBuffer,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Auth.AllowedOrigins,

		MembershipCacheTTL: cfg.Realtime.MembershipCacheTTL,
	}
}

// Limiter throttles handshakes per client address.
type Limiter interface {
	Allow(key string) bool
}

// ConnectedPayload is sent as the first frame once a connection has joined
// its rooms.
type ConnectedPayload struct {
	UserID domain.UserID `json:"user_id"`
	Rooms  []domain.Room `json:"rooms"`
}

const FrameConnected = "connected"

// Gateway authenticates websocket handshakes, joins connections to their
// rooms and relays events from the queue.
type Gateway struct {
	cfg         Config
	tokens      ports.TokenService
	memberships ports.MembershipLister
	memberCache *membershipCache
	hub         *Hub
	limiter     Limiter
	metrics     *monitoring.PrometheusCollector
	logger      *zap.SugaredLogger
	upgrader    websocket.Upgrader

	// lifecycle orders registration against Shutdown so no connection is
	// registered, and no pump added to wg, once CloseAll has run.
	lifecycle    sync.Mutex
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
}

type Option func(*Gateway)

func WithLimiter(l Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

func NewGateway(
	cfg Config,
	tokens ports.TokenService,
	memberships ports.MembershipLister,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
	opts ...Option,
) *Gateway {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}

	g := &Gateway{
		cfg:         cfg,
		tokens:      tokens,
		memberships: memberships,
		hub:         NewHub(metrics, logger),
		metrics:     metrics,
		logger:      logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	for _, opt := range opts {
		opt(g)
	}
	if cfg.MembershipCacheTTL > 0 {
		g.memberCache = newMembershipCache(memberships, cfg.MembershipCacheTTL)
		g.memberships = g.memberCache
	}
	return g
}

func (g *Gateway) Hub() *Hub {
	return g.hub
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// tokenFromRequest prefers the Authorization header over the token query
// parameter.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (g *Gateway) reject(w http.ResponseWriter, appErr *apperrors.AppError, reason string) {
	g.metrics.RecordHandshakeRejected(reason)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.Status())
	_ = json.NewEncoder(w).Encode(appErr.Envelope())
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.TraceHandshake(r.Context(), r.RemoteAddr)
	defer span.End()

	if g.shuttingDown.Load() {
		g.reject(w, apperrors.NewServiceUnavailableError("Server shutting down"), "shutting_down")
		return
	}
	if g.limiter != nil && !g.limiter.Allow(remoteIP(r)) {
		g.reject(w, apperrors.NewRateLimitError(), "rate_limited")
		return
	}

	conn := newConnection(uuid.NewString(), g.cfg.SendBuffer)
	conn.setState(StateAuthenticating)

	token := tokenFromRequest(r)
	if token == "" {
		g.reject(w, apperrors.NewUnauthorizedError("No token provided"), "no_token")
		return
	}
	userID, err := g.tokens.Verify(token)
	if err != nil {
		g.logger.Infow("realtime handshake rejected", "remote_addr", r.RemoteAddr, "error", err)
		tracing.RecordError(ctx, err)
		g.reject(w, apperrors.NewUnauthorizedError("Invalid token"), "invalid_token")
		return
	}
	conn.userID = userID
	span.SetAttributes(tracing.UserIDKey.String(string(userID)))

	rooms := []domain.Room{domain.UserRoom(userID)}
	memberships, err := g.memberships.ListByUser(ctx, userID)
	if err != nil {
		g.logger.Warnw("failed to list memberships, joining user room only",
			"user_id", userID,
			"error", err,
		)
	} else {
		rooms = domain.RoomsFor(userID, memberships)
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		g.logger.Warnw("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	conn.ws = ws

	hello, err := json.Marshal(struct {
		Type    string           `json:"type"`
		Payload ConnectedPayload `json:"payload"`
	}{FrameConnected, ConnectedPayload{UserID: userID, Rooms: rooms}})
	if err == nil {
		_ = conn.enqueue(hello)
	}

	g.lifecycle.Lock()
	if g.shuttingDown.Load() {
		g.lifecycle.Unlock()
		g.metrics.RecordHandshakeRejected("shutting_down")
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.cfg.WriteTimeout))
		_ = ws.Close()
		return
	}
	g.hub.Register(conn, rooms)
	g.wg.Add(2)
	g.lifecycle.Unlock()

	g.logger.Infow("realtime client connected",
		"conn_id", conn.id,
		"user_id", userID,
		"rooms", len(rooms),
	)

	go func() {
		defer g.wg.Done()
		conn.writePump(g.cfg)
	}()
	go func() {
		defer g.wg.Done()
		err := conn.readPump(g.cfg)
		g.disconnect(conn, err)
	}()
}

func (g *Gateway) disconnect(c *Connection, err error) {
	removed := g.hub.Unregister(c)
	c.close(websocket.CloseNormalClosure, "")

	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && err != errConnClosed {
		g.logger.Infow("realtime read error", "conn_id", c.id, "user_id", c.userID, "error", err)
	}
	if removed {
		g.logger.Infow("realtime client disconnected", "conn_id", c.id, "user_id", c.userID)
	}
}

// HandleEvent applies membership changes to live connections and relays
// the event to its rooms.
func (g *Gateway) HandleEvent(ctx context.Context, ev domain.Event) {
	rooms := make([]string, len(ev.Rooms))
	for i, r := range ev.Rooms {
		rooms[i] = string(r)
	}
	ctx, span := tracing.TraceFanOut(ctx, string(ev.Kind), rooms)
	defer span.End()

	if err := ev.Validate(); err != nil {
		tracing.RecordError(ctx, err)
		g.logger.Warnw("dropping invalid event", "kind", ev.Kind, "error", err)
		return
	}

	if ev.Kind == domain.KindMemberAdded || ev.Kind == domain.KindMemberRemoved {
		g.applyMembership(ev)
	}

	n, err := g.hub.Deliver(ev)
	if err != nil {
		tracing.RecordError(ctx, err)
		g.logger.Errorw("failed to relay event", "kind", ev.Kind, "error", err)
		return
	}
	span.SetAttributes(tracing.RecipientsKey.Int(n))
	g.metrics.RecordEventRelayed(string(ev.Kind), n)
}

func (g *Gateway) applyMembership(ev domain.Event) {
	var change domain.MemberChange
	if err := json.Unmarshal(ev.Payload, &change); err != nil || change.UserID == "" || change.WorkspaceID == "" {
		g.logger.Warnw("membership event without member", "kind", ev.Kind, "error", err)
		return
	}

	if g.memberCache != nil {
		g.memberCache.forget(change.UserID)
	}

	room := domain.WorkspaceRoom(change.WorkspaceID)
	if ev.Kind == domain.KindMemberAdded {
		if n := g.hub.Join(change.UserID, room); n > 0 {
			g.logger.Debugw("joined live connections to room", "user_id", change.UserID, "room", room, "connections", n)
		}
		return
	}
	if n := g.hub.Leave(change.UserID, room); n > 0 {
		g.logger.Debugw("removed live connections from room", "user_id", change.UserID, "room", room, "connections", n)
	}
}

// Run relays events from sub until ctx is done.
func (g *Gateway) Run(ctx context.Context, sub ports.EventSubscriber) error {
	return sub.Subscribe(ctx, g.HandleEvent)
}

// Shutdown closes every connection with a going-away frame and waits for
// the pumps to exit or ctx to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.lifecycle.Lock()
	g.shuttingDown.Store(true)
	g.lifecycle.Unlock()

	if g.memberCache != nil {
		g.memberCache.stop()
	}
	g.hub.CloseAll(websocket.CloseGoingAway, "server shutting down")

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
