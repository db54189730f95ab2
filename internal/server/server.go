package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/dvcapture/internal/device"
	"github.com/audiolibrelab/dvcapture/internal/service"
	"github.com/audiolibrelab/dvcapture/internal/session"
)

const (
	writeWait       = 10 * time.Second
	pingPeriod      = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server exposes the capture service over HTTP and a WebSocket stream
type Server struct {
	service  service.Service
	port     string
	upgrader websocket.Upgrader
}

// DevicesResponse represents the JSON response for the devices endpoint
type DevicesResponse struct {
	Devices  []device.Device `json:"devices"`
	Selected *device.Device  `json:"selected,omitempty"`
	Event    string          `json:"event,omitempty"`
}

// ActionResponse is returned by every successful POST
type ActionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Status  service.Snapshot `json:"status"`
}

type selectRequest struct {
	ID string `json:"id"`
}

// New creates a new web server instance
func New(svc service.Service, port string) *Server {
	return &Server{
		service: svc,
		port:    port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the UI may be served from another host on the LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routes without starting a listener
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/devices/refresh", s.handleRefresh)
	mux.HandleFunc("/api/devices/select", s.handleSelectDevice)
	mux.HandleFunc("/api/capture/start", s.handleStartCapture)
	mux.HandleFunc("/api/capture/stop", s.handleStopCapture)
	mux.HandleFunc("/api/capture/preview", s.handlePreview)
	mux.HandleFunc("/api/capture/record", s.handleRecord)
	mux.HandleFunc("/api/capture/release", s.handleRelease)
	mux.HandleFunc("/api/ws", s.handleStream)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting DV Capture Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex serves the minimal web UI
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendErrorResponse(w, http.StatusNotFound, "Not found", "path", r.URL.Path)
		return
	}
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(indexHTML))
}

// handleStatus returns the current projection
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.sendJSON(w, http.StatusOK, s.service.Snapshot())
}

// handleDevices lists the candidate camcorders
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.service.Snapshot()
	s.sendJSON(w, http.StatusOK, DevicesResponse{Devices: snap.Devices, Selected: snap.Selected})
}

// handleRefresh enumerates devices immediately
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}

	event, err := s.service.Refresh(r.Context())
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "refresh")
		return
	}

	snap := s.service.Snapshot()
	s.sendJSON(w, http.StatusOK, DevicesResponse{Devices: snap.Devices, Selected: snap.Selected, Event: event.String()})
}

// handleSelectDevice accepts {"id": "..."} or an id form value
func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}

	var req selectRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err), "operation", "select_device")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form data", "operation", "select_device", "error", err)
			return
		}
		req.ID = r.FormValue("id")
	}

	if req.ID == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Device id is required", "operation", "select_device")
		return
	}

	if err := s.service.SelectDevice(req.ID); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "select_device", "device", req.ID)
		return
	}
	s.sendAction(w, "Device selected")
}

// handleStartCapture starts recording the selected device
func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.service.Start(); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "start_capture")
		return
	}
	s.sendAction(w, "Recording started")
}

// handleStopCapture requests the end of the recording
func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.service.Stop(); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "stop_capture")
		return
	}
	s.sendAction(w, "Stop requested")
}

// handlePreview binds the selected device without writing a file
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.service.Preview(); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "preview")
		return
	}
	s.sendAction(w, "Preview running")
}

// handleRecord starts writing the previewed device
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.service.Record(); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "record")
		return
	}
	s.sendAction(w, "Recording started")
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	s.service.Release()
	s.sendAction(w, "Device released")
}

// handleStream pushes every projection to the client as JSON
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		slog.Warn("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	updates, cancel := s.service.Subscribe()
	defer cancel()

	slog.Debug("Status stream opened", "remote", r.RemoteAddr)

	// the read loop only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				slog.Debug("Status stream write failed", "error", err)
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-gone:
			slog.Debug("Status stream closed by client", "remote", r.RemoteAddr)
			return
		}
	}
}

func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "method", r.Method, "path", r.URL.Path)
	return false
}

func (s *Server) sendAction(w http.ResponseWriter, message string) {
	s.sendJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: message,
		Status:  s.service.Snapshot(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoDeviceSelected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Warn("Sending error response to client", logFields...)
	}

	s.sendJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>DV Capture</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
<main class="container">
    <h1>DV Capture</h1>
    <label for="device">Camcorder
        <select id="device" onchange="selectDevice(this.value)"></select>
    </label>
    <div role="group">
        <button id="start" onclick="post('/api/capture/start')">Start</button>
        <button id="stop" class="secondary" onclick="post('/api/capture/stop')">Stop</button>
    </div>
    <div role="group">
        <button id="preview" class="outline" onclick="post('/api/capture/preview')">Preview</button>
        <button id="record" class="outline" onclick="post('/api/capture/record')">Record</button>
        <button id="release" class="outline secondary" onclick="post('/api/capture/release')">Release</button>
        <button class="outline" onclick="post('/api/devices/refresh')">Refresh</button>
    </div>
    <p id="status">Ready</p>
</main>
<script>
function post(path, body) {
    return fetch(path, {method: 'POST', headers: {'Content-Type': 'application/json'}, body: body ? JSON.stringify(body) : null});
}
function selectDevice(id) { post('/api/devices/select', {id: id}); }
function render(s) {
    document.getElementById('status').textContent = s.status_text;
    document.getElementById('start').disabled = s.is_recording || !s.selected;
    document.getElementById('stop').disabled = !s.is_recording;
    const phase = s.state && s.state.phase;
    document.getElementById('preview').disabled = phase !== 'IDLE' || !s.selected;
    document.getElementById('record').disabled = phase !== 'RUNNING';
    document.getElementById('release').disabled = phase !== 'RUNNING';
    const sel = document.getElementById('device');
    sel.innerHTML = '';
    (s.devices || []).forEach(d => {
        const o = document.createElement('option');
        o.value = d.unique_id;
        o.textContent = d.display_name || d.unique_id;
        o.selected = s.selected && s.selected.unique_id === d.unique_id;
        sel.appendChild(o);
    });
}
function connect() {
    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/ws');
    ws.onmessage = e => render(JSON.parse(e.data));
    ws.onclose = () => setTimeout(connect, 2000);
}
connect();
</script>
</body>
</html>`
