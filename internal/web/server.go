package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"image-converter-go/internal/batch"
	"image-converter-go/internal/config"
	"image-converter-go/internal/converter"
	"image-converter-go/internal/history"
	"image-converter-go/internal/imageinfo"
	"image-converter-go/internal/platform"
	"image-converter-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// MaxUploadSize bounds a dropped file.
const MaxUploadSize = 100 << 20

// UploadPrefix prefixes the temporary name of a dropped file.
const UploadPrefix = "image-converter-"

// ImageInspector reads image info for the API.
type ImageInspector interface {
	Inspect(path string) (*imageinfo.Info, error)
}

// OutputDirectoryStore remembers the last used output directory.
type OutputDirectoryStore interface {
	LastOutputDirectory() string
	SetLastOutputDirectory(dir string) error
}

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	converter converter.Converter
	history   *history.Store
	dirs      OutputDirectoryStore
	inspector ImageInspector
	reveal    func(path string) error

	ctx    context.Context
	cancel context.CancelFunc

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	session        *batch.Session
	currentStats   *statistics.Statistics
	batchDone      chan struct{}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ConvertRequest is the wire form of a conversion request. Quality is left
// untyped so a non-numeric value is reported as an invalid quality.
type ConvertRequest struct {
	SourcePath string      `json:"source_path"`
	OutputDir  string      `json:"output_dir"`
	Quality    interface{} `json:"quality"`
	Format     string      `json:"format"`
}

type BatchRequest struct {
	Paths     []string    `json:"paths"`
	OutputDir string      `json:"output_dir"`
	Quality   interface{} `json:"quality"`
	Format    string      `json:"format"`
}

type PathRequest struct {
	Path string `json:"path"`
}

type OutputDirRequest struct {
	OutputDir string `json:"output_dir"`
}

type BatchStatus struct {
	Running    bool                 `json:"running"`
	Settings   *batch.Settings      `json:"settings,omitempty"`
	Items      []batch.Item         `json:"items"`
	Statistics *statistics.Snapshot `json:"statistics,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(
	cfg *config.Config,
	log *logrus.Logger,
	conv converter.Converter,
	hist *history.Store,
	dirs OutputDirectoryStore,
	inspector ImageInspector,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tool; the API listens for the user's own browser
			},
		},
		converter: conv,
		history:   hist,
		dirs:      dirs,
		inspector: inspector,
		reveal:    platform.Reveal,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/convert", s.handleConvert).Methods("POST")
	api.HandleFunc("/batch", s.handleStartBatch).Methods("POST")
	api.HandleFunc("/batch", s.handleGetBatch).Methods("GET")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/history", s.handleSaveHistory).Methods("POST")
	api.HandleFunc("/history", s.handleClearHistory).Methods("DELETE")
	api.HandleFunc("/image-info", s.handleImageInfo).Methods("GET")
	api.HandleFunc("/upload", s.handleUpload).Methods("POST")
	api.HandleFunc("/reveal", s.handleReveal).Methods("POST")
	api.HandleFunc("/settings/output-dir", s.handleGetOutputDir).Methods("GET")
	api.HandleFunc("/settings/output-dir", s.handleSetOutputDir).Methods("PUT")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("localhost:%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
			"files":   stats.Snapshot(),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"backend":    s.cfg.Backend.Name,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res := s.converter.Convert(r.Context(), converter.Request{
		SourcePath:      req.SourcePath,
		OutputDirectory: req.OutputDir,
		Quality:         parseQuality(req.Quality),
		Format:          s.formatOrDefault(req.Format),
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    res,
	})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Paths) == 0 {
		s.writeError(w, "At least one image is required", http.StatusBadRequest)
		return
	}

	quality := s.cfg.Defaults.Quality
	if req.Quality != nil {
		quality = parseQuality(req.Quality)
	}

	session := batch.NewSession(batch.Settings{
		Quality:         quality,
		OutputDirectory: req.OutputDir,
		Format:          s.formatOrDefault(req.Format),
	})
	items := session.Add(req.Paths...)

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Conversion already in progress", http.StatusConflict)
		return
	}
	s.isRunning = true
	s.session = session
	s.currentStats = nil
	s.batchDone = make(chan struct{})
	done := s.batchDone
	s.operationMutex.Unlock()

	go s.runBatchAsync(session, done)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Conversion started",
		Data:    items,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.batchStatus(),
	})
}

func (s *Server) batchStatus() BatchStatus {
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()

	status := BatchStatus{Running: s.isRunning, Items: []batch.Item{}}
	if s.session != nil {
		settings := s.session.Settings()
		status.Settings = &settings
		status.Items = s.session.Items()
	}
	if s.currentStats != nil {
		snap := s.currentStats.Snapshot()
		status.Statistics = &snap
	}
	return status
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.history.List(),
	})
}

func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	var item history.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp == "" {
		item.Timestamp = time.Now().UTC().Format(history.TimestampFormat)
	}

	if err := s.history.Append(item); err != nil {
		s.log.WithError(err).Error("Failed to save conversion history")
		s.writeError(w, "Failed to save history", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    true,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(); err != nil {
		s.log.WithError(err).Error("Failed to clear conversion history")
		s.writeError(w, "Failed to clear history", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    true,
	})
}

func (s *Server) handleImageInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	info, err := s.inspector.Inspect(path)
	if err != nil {
		s.log.WithError(err).WithField("file", path).Warn("Error getting image info")
		s.writeJSON(w, APIResponse{Success: true, Data: nil})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    info,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, "File is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		s.writeError(w, "Invalid file name", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(s.cfg.Server.UploadDir, 0755); err != nil {
		s.writeError(w, fmt.Sprintf("Failed to prepare upload dir: %v", err), http.StatusInternalServerError)
		return
	}

	tempPath := filepath.Join(s.cfg.Server.UploadDir,
		fmt.Sprintf("%s%d-%s", UploadPrefix, time.Now().UnixMilli(), name))
	out, err := os.Create(tempPath)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to store file: %v", err), http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		_ = os.Remove(tempPath)
		s.writeError(w, fmt.Sprintf("Failed to store file: %v", err), http.StatusInternalServerError)
		return
	}
	if err := out.Close(); err != nil {
		s.writeError(w, fmt.Sprintf("Failed to store file: %v", err), http.StatusInternalServerError)
		return
	}

	s.log.WithField("file", tempPath).Debug("Stored dropped file")
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    tempPath,
	})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	opened := true
	if err := s.reveal(req.Path); err != nil {
		s.log.WithError(err).WithField("file", req.Path).Warn("Error opening file")
		opened = false
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    opened,
	})
}

func (s *Server) handleGetOutputDir(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.dirs.LastOutputDirectory(),
	})
}

func (s *Server) handleSetOutputDir(w http.ResponseWriter, r *http.Request) {
	var req OutputDirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	dir := strings.TrimSpace(req.OutputDir)
	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			s.writeError(w, "Output directory does not exist", http.StatusBadRequest)
			return
		}
	}

	if err := s.dirs.SetLastOutputDirectory(dir); err != nil {
		s.writeError(w, fmt.Sprintf("Failed to save setting: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    dir,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runBatchAsync(session *batch.Session, done chan struct{}) {
	defer close(done)

	settings := session.Settings()
	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"settings": settings,
		"items":    session.Items(),
	})

	runner := batch.NewRunner(s.converter, s.history, s.log)
	runner.SetDirectoryRecorder(s.dirs)
	runner.SetUpdateCallback(func(item batch.Item) {
		s.broadcastWSMessage("item_updated", item)
	})

	stats := runner.Run(s.ctx, session)

	s.operationMutex.Lock()
	s.isRunning = false
	s.currentStats = stats
	s.operationMutex.Unlock()

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"summary":    stats.GetSummary(),
		"statistics": stats.Snapshot(),
	})
}

// waitForBatch blocks until the running batch, if any, has finished.
func (s *Server) waitForBatch() {
	s.operationMutex.RLock()
	done := s.batchDone
	s.operationMutex.RUnlock()
	if done != nil {
		<-done
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) formatOrDefault(format string) converter.Format {
	if format == "" {
		return converter.Format(s.cfg.Defaults.Format)
	}
	return converter.Format(format)
}

// parseQuality returns v as an integer quality, or 0 when v is not a whole
// number so validation rejects it.
func parseQuality(v interface{}) int {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
