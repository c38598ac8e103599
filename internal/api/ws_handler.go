package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"jobgate/internal/auth"
	"jobgate/internal/notify"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// WsHandler streams a user's in-app notifications from redis to a websocket.
type WsHandler struct {
	redisClient *redis.Client
	authService *auth.AuthService
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewWsHandler builds the handler. An empty allowedOrigins admits only same-host origins.
func NewWsHandler(redisClient *redis.Client, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		redisClient: redisClient,
		authService: authService,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsAuthError carries the close text sent to the client when the handshake fails.
type wsAuthError struct {
	closeText string
	err       error
}

func (e *wsAuthError) Error() string { return e.closeText + ": " + e.err.Error() }
func (e *wsAuthError) Unwrap() error { return e.err }

// HandleConnection upgrades the connection, waits for {"type":"auth","token":...}
// and then forwards the user's notification channel until either side goes away.
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		text := "unauthorized"
		var authErr *wsAuthError
		if errors.As(err, &authErr) {
			text = authErr.closeText
		}
		writeClose(conn, websocket.ClosePolicyViolation, text)
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}

	log = log.With(slog.Uint64("user_id", uint64(userID)))
	log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	disconnected := make(chan error, 1)
	go drain(conn, disconnected)

	err = h.forward(ctx, conn, userID, disconnected)
	if err != nil {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

// authenticate reads the first client frame and resolves it to a user id.
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	if err := conn.SetReadDeadline(time.Now().Add(wsAuthTimeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return 0, &wsAuthError{closeText: "auth required", err: fmt.Errorf("read auth message: %w", err)}
	}
	_ = conn.SetReadDeadline(time.Time{})

	var msg wsAuthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, &wsAuthError{closeText: "invalid auth payload", err: fmt.Errorf("decode auth payload: %w", err)}
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, &wsAuthError{closeText: "auth required", err: errors.New("missing auth token")}
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		return 0, &wsAuthError{closeText: "unauthorized", err: fmt.Errorf("validate token: %w", err)}
	}
	switch {
	case claims.TokenType != auth.TokenTypeAccess:
		return 0, &wsAuthError{closeText: "access token required", err: fmt.Errorf("token type %s", claims.TokenType)}
	case claims.Principal().IsCompany():
		return 0, &wsAuthError{closeText: "user token required", err: errors.New("company principals have no notification stream")}
	}
	return claims.PrincipalID, nil
}

// drain discards client frames so that close and pong frames are processed,
// and reports the first read error.
func drain(conn *websocket.Conn, done chan<- error) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			done <- err
			return
		}
	}
}

func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, userID uint, disconnected <-chan error) error {
	pubsub := h.redisClient.Subscribe(ctx, notify.UserChannel(userID))
	defer pubsub.Close()

	messages := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-disconnected:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		case msg, ok := <-messages:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
