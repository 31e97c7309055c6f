package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"smartflow/lights"
	"smartflow/manager"
	"smartflow/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head><title>smartflow {{.Mode}}</title></head>
<body>
<h1>smartflow: {{.Mode}}</h1>
<p>run {{.RunID}}</p>
<p>live snapshots on <code>/ws</code>, metrics on <code>/api/metrics</code></p>
</body>
</html>
`))

type WebServer struct {
	TrafficManager *manager.TrafficManager
	StatsDir       string
	Interval       time.Duration
	Logger         *slog.Logger

	clients      map[*websocket.Conn]string
	clientsMutex sync.Mutex
}

func NewWebServer(tm *manager.TrafficManager) *WebServer {
	return &WebServer{
		TrafficManager: tm,
		StatsDir:       "statistics",
		Interval:       200 * time.Millisecond,
		Logger:         slog.Default(),
		clients:        make(map[*websocket.Conn]string),
	}
}

func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/ws", s.handleWs)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/api/csv-data", s.handleCsvData)
	return mux
}

// Start serves on addr and broadcasts snapshots until ctx is done.
func (s *WebServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.Broadcast(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.Logger.Info("web server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *WebServer) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	err := homeTemplate.Execute(w, s.TrafficManager)
	if err != nil {
		s.Logger.Error("err executing template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *WebServer) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("err upgrading connection", "error", err)
		return
	}

	id := uuid.NewString()
	s.clientsMutex.Lock()
	s.clients[conn] = id
	total := len(s.clients)
	s.clientsMutex.Unlock()

	s.Logger.Info("new websocket client connected", "client", id, "clients", total)

	go s.handleClientMessages(conn, id)
}

// handleClientMessages applies the commands a websocket client sends until
// it disconnects.
func (s *WebServer) handleClientMessages(conn *websocket.Conn, id string) {
	defer func() {
		conn.Close()
		s.clientsMutex.Lock()
		delete(s.clients, conn)
		remaining := len(s.clients)
		s.clientsMutex.Unlock()
		s.Logger.Info("websocket client disconnected", "client", id, "clients", remaining)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.Logger.Warn("websocket error", "client", id, "error", err)
			}
			return
		}

		var cmd manager.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			s.Logger.Warn("malformed websocket command", "client", id, "error", err)
			continue
		}
		if err := s.TrafficManager.Apply(cmd); err != nil {
			s.Logger.Warn("command rejected", "client", id, "action", cmd.Action, "error", err)
		}
	}
}

// Broadcast pushes a snapshot to every websocket client each Interval.
func (s *WebServer) Broadcast(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.clientsMutex.Lock()
		empty := len(s.clients) == 0
		s.clientsMutex.Unlock()
		if empty {
			continue
		}

		snapshotJson, err := json.Marshal(s.TrafficManager.Snapshot())
		if err != nil {
			s.Logger.Error("err marshaling snapshot", "error", err)
			continue
		}

		s.clientsMutex.Lock()
		for conn, id := range s.clients {
			if err := conn.WriteMessage(websocket.TextMessage, snapshotJson); err != nil {
				s.Logger.Warn("websocket write error", "client", id, "error", err)
				conn.Close()
				delete(s.clients, conn)
			}
		}
		s.clientsMutex.Unlock()
	}
}

func (s *WebServer) closeClients() {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *WebServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.TrafficManager.Snapshot())
}

func (s *WebServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"runId":   s.TrafficManager.RunID,
		"current": s.TrafficManager.CurrentMetrics(),
		"history": s.TrafficManager.Metrics(),
	})
}

func (s *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"files": s.getStatisticsFiles(),
	})
}

func (s *WebServer) getStatisticsFiles() []map[string]string {
	files := []map[string]string{}

	filepath.Walk(s.StatsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(path, ".csv") {
			mode := "unknown"
			switch {
			case strings.Contains(info.Name(), string(manager.ModeMotorway)):
				mode = string(manager.ModeMotorway)
			case strings.Contains(info.Name(), string(manager.ModeIntersection)):
				mode = string(manager.ModeIntersection)
			}

			files = append(files, map[string]string{
				"name": info.Name(),
				"size": fmt.Sprintf("%.2f KB", float64(info.Size())/1024),
				"time": info.ModTime().Format("2006-01-02 15:04:05"),
				"mode": mode,
			})
		}

		return nil
	})

	return files
}

func (s *WebServer) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cmd, err := parseCommand(r)
	if err != nil {
		s.Logger.Warn("malformed control request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cmd.Action == "" {
		http.Error(w, "Action parameter required", http.StatusBadRequest)
		return
	}

	s.Logger.Info("control action received", "action", cmd.Action)

	if err := s.TrafficManager.Apply(cmd); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, manager.ErrUnknownAction) || errors.Is(err, lights.ErrUnknownLight) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": cmd.Action})
}

// parseCommand reads a command from a JSON body or from form values.
func parseCommand(r *http.Request) (manager.Command, error) {
	var cmd manager.Command

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&cmd); err != nil {
			return cmd, fmt.Errorf("decode command: %w", err)
		}
		return cmd, nil
	}

	if err := r.ParseForm(); err != nil {
		return cmd, fmt.Errorf("parse form: %w", err)
	}

	cmd.Action = r.FormValue("action")
	cmd.Priority = models.Priority(r.FormValue("priority"))
	cmd.Origin = models.Direction(r.FormValue("origin"))
	cmd.Movement = models.Movement(r.FormValue("movement"))

	var err error
	if v := r.FormValue("target_node"); v != "" {
		if cmd.TargetNode, err = strconv.Atoi(v); err != nil {
			return cmd, fmt.Errorf("target_node: %w", err)
		}
	}
	if v := r.FormValue("light"); v != "" {
		if cmd.Light, err = strconv.Atoi(v); err != nil {
			return cmd, fmt.Errorf("light: %w", err)
		}
	}
	if v := r.FormValue("green"); v != "" {
		if cmd.Green, err = strconv.ParseBool(v); err != nil {
			return cmd, fmt.Errorf("green: %w", err)
		}
	}
	return cmd, nil
}

func (s *WebServer) handleCsvData(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	if name == "" {
		http.Error(w, "File parameter required", http.StatusBadRequest)
		return
	}

	if filepath.Base(name) != name || !strings.HasSuffix(name, ".csv") {
		s.Logger.Warn("rejected csv path", "file", name)
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	filePath := filepath.Join(s.StatsDir, name)
	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, fmt.Sprintf("File not found: %s", name), http.StatusNotFound)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	headers, err := reader.Read()
	if err != nil {
		s.Logger.Error("err reading csv headers", "file", filePath, "error", err)
		http.Error(w, "Error reading CSV headers", http.StatusInternalServerError)
		return
	}

	rows := []map[string]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.Logger.Warn("err reading csv row", "file", filePath, "error", err)
			continue
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = value
			}
		}
		rows = append(rows, row)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"headers": headers,
		"rows":    rows,
		"file":    name,
	})

	s.Logger.Debug("served csv data", "file", filePath, "rows", len(rows))
}
