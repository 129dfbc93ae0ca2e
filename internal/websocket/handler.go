package websocket

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"scaletrend/internal/config"
	apierrors "scaletrend/internal/errors"
	"scaletrend/internal/services"
)

const defaultUpgradeBufferSize = 1024

// Handler upgrades HTTP requests on the window-socket endpoint and hands the
// connection to a Client backed by the analysis engine.
type Handler struct {
	hub            *Hub
	service        WindowService
	cfg            config.WebSocketConfig
	allowedOrigins []string
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
}

// NewHandler creates a window-socket handler
func NewHandler(hub *Hub, service WindowService, cfg config.WebSocketConfig, allowedOrigins []string, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *Handler {
	return &Handler{
		hub:            hub,
		service:        service,
		cfg:            cfg,
		allowedOrigins: allowedOrigins,
		logger:         logger.With(slog.String("component", "websocket_handler")),
		errorHandler:   errorHandler,
	}
}

// ServeHTTP handles GET /ws/window
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	h.logger.InfoContext(ctx, "WebSocket upgrade requested",
		slog.String("origin", r.Header.Get("Origin")),
		slog.String("host", r.Host),
		slog.String("request_id", reqID))

	readBuffer := h.cfg.ReadBufferSize
	if readBuffer <= 0 {
		readBuffer = defaultUpgradeBufferSize
	}
	writeBuffer := h.cfg.WriteBufferSize
	if writeBuffer <= 0 {
		writeBuffer = defaultUpgradeBufferSize
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  readBuffer,
		WriteBufferSize: writeBuffer,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			upgradeErr := fmt.Errorf("%w: %v", services.ErrWebSocketUpgrade, reason)
			h.logger.ErrorContext(r.Context(), "WebSocket upgrade failed",
				slog.Int("status", status),
				slog.String("error", upgradeErr.Error()),
				slog.String("origin", r.Header.Get("Origin")))

			if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
				otelMetrics.RecordConnectionError(r.Context(), reqID, "upgrade_failed", upgradeErr)
			}

			h.errorHandler.HandleError(w, r, apierrors.New(status, "WEBSOCKET_UPGRADE_FAILED", upgradeErr.Error()))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The Error hook has already written the problem response
		return
	}

	client := NewClientWithTrace(h.hub, conn, h.service, h.cfg, reqID, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", reqID))
}

// checkOrigin validates the upgrade request's Origin header against the
// configured allow list. No configured origins means same-host tooling and
// local development, which accepts everything.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(h.allowedOrigins) == 0 {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	h.logger.Warn("WebSocket origin rejected",
		slog.String("origin", origin))
	return false
}
