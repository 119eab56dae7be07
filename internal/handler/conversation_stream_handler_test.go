package handler_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/service"
)

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "ws://" + listener.Addr().String(), shutdown
}

func TestConversationStreamPushesOnEvents(t *testing.T) {
	svc := newMockConversationService()
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	stream := handler.NewConversationStreamHandler(svc, time.Second, zerolog.Nop())
	stream.RegisterUser(app.Group("/api/conversation", identity("user-1", "customer")))

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(baseURL+"/api/conversation/ws", nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	var frame handler.ConversationFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "snapshot", frame.Event)
	require.Equal(t, "conv-1", frame.Conversation.ID)
	require.Equal(t, "user", frame.Conversation.Viewer)

	svc.events.Publish(context.Background(), service.ConversationEvent{ConversationID: "conv-1", Kind: service.EventMessageCreated})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, service.EventMessageCreated, frame.Event)
}

func TestConversationStreamAdminUnknownConversation(t *testing.T) {
	svc := newMockConversationService()
	svc.err = service.ErrConversationNotFound
	app := fiber.New()

	stream := handler.NewConversationStreamHandler(svc, time.Second, zerolog.Nop())
	stream.RegisterAdmin(app.Group("/api/conversation/admin", identity("admin-1", "admin")))

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(baseURL+"/api/conversation/admin/ws/missing", nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	require.Equal(t, "View", svc.last().method)
	require.Equal(t, "missing", svc.last().conversationID)
}

func TestConversationStreamRequiresUpgrade(t *testing.T) {
	svc := newMockConversationService()
	app := fiber.New()
	stream := handler.NewConversationStreamHandler(svc, time.Second, zerolog.Nop())
	stream.RegisterUser(app.Group("/api/conversation", identity("user-1", "customer")))

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/conversation/ws", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	require.Empty(t, svc.calls)
}
