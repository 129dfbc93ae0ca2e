package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"scaletrend/internal/config"
	apierrors "scaletrend/internal/errors"
	"scaletrend/internal/infrastructure"
	"scaletrend/internal/services"
	"scaletrend/internal/trend"
	v1 "scaletrend/pkg/contracts/api/v1"
	"scaletrend/pkg/contracts/events"
)

const (
	// Fallback timings when the config leaves them zero
	defaultWriteWait = 10 * time.Second
	defaultPongWait  = 60 * time.Second

	// Maximum frame size allowed from peer. Window frames are small JSON.
	defaultMaxFrameSize = 4096

	// Per-client budget for window frames. Refilters are cheap but not free;
	// a client replaying the slider should never starve the hub.
	refilterPerSecond = 5
	refilterBurst     = 10

	// windowDateLayout is the calendar-date format accepted in window frames.
	windowDateLayout = "2006-01-02"
)

// Client is a middleman between one websocket connection and the analysis
// engine: every window frame it reads is answered with a refiltered summary.
type Client struct {
	hub *Hub

	// The websocket connection
	conn Connection

	// The engine serving refilters
	service WindowService

	// Throttles window frames per connection
	refilterLimiter *rate.Limiter

	// Buffered channel of outbound frames
	send chan []byte

	// Client metadata
	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	// Resolved timings
	writeWait    time.Duration
	pongWait     time.Duration
	pingPeriod   time.Duration
	maxFrameSize int64

	// Logger
	logger *slog.Logger

	// Counters
	framesSent     int64
	framesReceived int64
	bytesSent      int64
	bytesReceived  int64
}

// NewClient creates a new Client with dependency injection
func NewClient(hub *Hub, conn *websocket.Conn, service WindowService, cfg config.WebSocketConfig, logger *slog.Logger) *Client {
	return NewClientWithConnection(hub, NewConnectionWrapper(conn), service, cfg, logger)
}

// NewClientWithConnection creates a new Client with a custom connection (for testing)
func NewClientWithConnection(hub *Hub, conn Connection, service WindowService, cfg config.WebSocketConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	id := uuid.New().String()
	logger = logger.With(
		slog.String("component", "websocket.client"),
		slog.String("client_id", id),
	)

	writeWait, pongWait, pingPeriod, maxFrameSize := resolveTimings(cfg)

	return &Client{
		hub:             hub,
		conn:            conn,
		service:         service,
		refilterLimiter: rate.NewLimiter(rate.Limit(refilterPerSecond), refilterBurst),
		send:            make(chan []byte, 256),
		id:              id,
		remoteAddr:      conn.RemoteAddr(),
		connectedAt:     time.Now(),
		writeWait:       writeWait,
		pongWait:        pongWait,
		pingPeriod:      pingPeriod,
		maxFrameSize:    maxFrameSize,
		logger:          logger,
	}
}

// NewClientWithTrace creates a new Client carrying the upgrade request's trace ID
func NewClientWithTrace(hub *Hub, conn *websocket.Conn, service WindowService, cfg config.WebSocketConfig, traceID string, logger *slog.Logger) *Client {
	client := NewClient(hub, conn, service, cfg, logger)
	client.traceID = traceID
	client.logger = client.logger.With(slog.String("trace_id", traceID))
	return client
}

// resolveTimings fills zero config values with the package defaults. The ping
// period must stay below the pong wait or the peer times out between pings.
func resolveTimings(cfg config.WebSocketConfig) (writeWait, pongWait, pingPeriod time.Duration, maxFrameSize int64) {
	writeWait = cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}

	pongWait = cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}

	pingPeriod = cfg.PingPeriod
	if pingPeriod <= 0 || pingPeriod >= pongWait {
		pingPeriod = (pongWait * 9) / 10
	}

	maxFrameSize = cfg.MaxMessageSize
	if maxFrameSize <= 0 {
		maxFrameSize = defaultMaxFrameSize
	}

	return writeWait, pongWait, pingPeriod, maxFrameSize
}

// ctx returns a base context carrying the client's trace ID when present.
func (c *Client) ctx() context.Context {
	if c.traceID != "" {
		return infrastructure.WithTraceID(context.Background(), c.traceID)
	}
	return context.Background()
}

// ReadPump pumps frames from the websocket connection into the refilter loop
func (c *Client) ReadPump() {
	defer func() {
		c.logger.InfoContext(c.ctx(), "WebSocket client disconnected (readPump)",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("frames_received", c.framesReceived),
			slog.Int64("bytes_received", c.bytesReceived))
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(c.ctx(), "Unexpected WebSocket close error",
					slog.String("error", err.Error()))
			} else {
				closed := fmt.Errorf("%w: %v", services.ErrWebSocketClosed, err)
				c.logger.DebugContext(c.ctx(), "WebSocket read loop ended",
					slog.String("error", closed.Error()))
			}
			break
		}

		c.framesReceived++
		c.bytesReceived += int64(len(message))
		GetMetrics().RecordFrame("received", int64(len(message)))

		c.handleFrame(message)
	}
}

// handleFrame dispatches one inbound protocol frame.
func (c *Client) handleFrame(message []byte) {
	ctx := c.ctx()

	var frame events.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		invalid := fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
		c.logger.WarnContext(ctx, "Discarding unparseable frame",
			slog.String("error", invalid.Error()))
		if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
			otelMetrics.RecordFrameError(ctx, "unknown", c.id, "unmarshal")
		}
		c.sendError(events.ErrCodeInvalidFrame, "frame is not valid protocol JSON")
		return
	}

	if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
		otelMetrics.RecordFrameReceived(ctx, string(frame.Type), c.id, int64(len(message)))
	}

	switch frame.Type {
	case events.MessageTypePing:
		c.enqueueFrame(events.NewFrame(events.MessageTypePong, nil))

	case events.MessageTypeWindow:
		c.handleWindow(ctx, frame)

	default:
		c.sendError(events.ErrCodeInvalidFrame, fmt.Sprintf("unsupported frame type %q", frame.Type))
	}
}

// handleWindow serves one refilter request.
func (c *Client) handleWindow(ctx context.Context, frame events.Frame) {
	if !c.refilterLimiter.Allow() {
		c.logger.WarnContext(ctx, "Throttling window frames",
			slog.String("remote_addr", c.remoteAddr))
		c.sendError(events.ErrCodeRateLimited, "too many window requests; slow down")
		return
	}

	var req v1.WindowSubscribeRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		invalid := fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
		c.logger.WarnContext(ctx, "Discarding malformed window payload",
			slog.String("error", invalid.Error()))
		c.sendError(events.ErrCodeInvalidFrame, "window payload is malformed")
		return
	}

	if _, err := uuid.Parse(req.AnalysisID); err != nil {
		c.sendError(events.ErrCodeUnknownAnalysis, "analysis_id must be a UUID")
		return
	}

	window, err := parseWindowBounds(req.Start, req.End)
	if err != nil {
		c.sendError(events.ErrCodeInvalidWindow, err.Error())
		return
	}

	start := time.Now()
	summary, err := c.service.Window(ctx, req.AnalysisID, window)
	duration := time.Since(start)

	GetMetrics().RecordWindow(duration, err == nil)
	if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
		otelMetrics.RecordWindowRefilter(ctx, req.AnalysisID, duration, err == nil)
	}

	if err != nil {
		switch {
		case errors.Is(err, apierrors.ErrAnalysisNotFound), errors.Is(err, apierrors.ErrAnalysisExpired):
			c.sendError(events.ErrCodeUnknownAnalysis, "no live analysis with this id; upload the dataset again")
		default:
			c.logger.ErrorContext(ctx, "Window refilter failed",
				slog.String("analysis_id", req.AnalysisID),
				slog.String("error", err.Error()))
			c.sendError(events.ErrCodeServerError, "refilter failed")
		}
		return
	}

	payload, err := json.Marshal(v1.AnalyzeResponse{AnalysisID: req.AnalysisID, Summary: summary})
	if err != nil {
		c.logger.ErrorContext(ctx, "Error marshaling summary payload",
			slog.String("error", err.Error()))
		c.sendError(events.ErrCodeServerError, "summary could not be encoded")
		return
	}

	reply := events.NewFrame(events.MessageTypeSummary, payload)
	reply.TraceID = c.traceID
	c.enqueueFrame(reply)

	c.logger.DebugContext(ctx, "Window refiltered",
		slog.String("analysis_id", req.AnalysisID),
		slog.Int("weeks", summary.Meta.Weeks),
		slog.Duration("duration", duration))
}

// parseWindowBounds builds a bucket filter from the frame's date strings.
func parseWindowBounds(startValue, endValue string) (trend.Window, error) {
	var window trend.Window

	if startValue != "" {
		start, err := time.Parse(windowDateLayout, startValue)
		if err != nil {
			return trend.Window{}, fmt.Errorf("start must be an ISO date (YYYY-MM-DD)")
		}
		window.Start = &start
	}

	if endValue != "" {
		end, err := time.Parse(windowDateLayout, endValue)
		if err != nil {
			return trend.Window{}, fmt.Errorf("end must be an ISO date (YYYY-MM-DD)")
		}
		window.End = &end
	}

	return window, nil
}

// sendError enqueues a non-fatal protocol error frame.
func (c *Client) sendError(code, message string) {
	payload, err := json.Marshal(events.ProtocolError{Code: code, Message: message})
	if err != nil {
		c.logger.Error("Error marshaling protocol error", slog.String("error", err.Error()))
		return
	}

	frame := events.NewFrame(events.MessageTypeError, payload)
	frame.TraceID = c.traceID
	c.enqueueFrame(frame)
}

// enqueueFrame marshals and queues one outbound frame, dropping it when the
// client's buffer is full rather than blocking the read loop.
func (c *Client) enqueueFrame(frame events.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Error marshaling frame", slog.String("error", err.Error()))
		return
	}

	select {
	case c.send <- data:
	default:
		GetMetrics().RecordDroppedFrame()
		if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
			otelMetrics.RecordDroppedFrame(c.ctx(), string(frame.Type), "buffer_full")
		}
		c.logger.Warn("Client buffer full, dropping frame",
			slog.String("frame_type", string(frame.Type)))
	}
}

// WritePump pumps frames from the send buffer to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()

		c.logger.InfoContext(c.ctx(), "WebSocket write pump stopped",
			slog.Int64("frames_sent", c.framesSent),
			slog.Int64("bytes_sent", c.bytesSent))
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(c.ctx(), "Error writing frame to WebSocket",
					slog.String("error", err.Error()))
				return
			}

			c.framesSent++
			c.bytesSent += int64(len(message))
			GetMetrics().RecordFrame("sent", int64(len(message)))
			if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
				otelMetrics.RecordFrameSent(c.ctx(), "server_frame", c.id, int64(len(message)))
			}

			// Flush any queued frames as separate WebSocket messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				select {
				case msg := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						c.logger.ErrorContext(c.ctx(), "Error writing queued frame to WebSocket",
							slog.String("error", err.Error()))
						return
					}
					c.framesSent++
					c.bytesSent += int64(len(msg))
					GetMetrics().RecordFrame("sent", int64(len(msg)))
					if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
						otelMetrics.RecordFrameSent(c.ctx(), "server_frame", c.id, int64(len(msg)))
					}
				default:
					// Channel was empty
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.ctx(), "Failed to send ping message",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}
