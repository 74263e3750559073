package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"fieldsync/internal/logger"
	"fieldsync/internal/model"
	"fieldsync/internal/offline"
	"fieldsync/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const maxPhotoSize = 32 << 20

// SignalSetter receives connectivity signals pushed by the host.
type SignalSetter interface {
	Set(online bool)
}

type HistoryReader interface {
	GetRecent(limit int) ([]model.History, error)
	GetStats() (repository.Stats, error)
	GetAbandoned(since time.Time) ([]model.Abandonment, error)
}

type Server struct {
	echo    *echo.Echo
	orch    *Orchestrator
	signal  SignalSetter
	history HistoryReader
	port    int
	stopCh  chan struct{}
}

func NewServer(orch *Orchestrator, signal SignalSetter, history HistoryReader, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("33M"))

	s := &Server{
		echo:    e,
		orch:    orch,
		signal:  signal,
		history: history,
		port:    port,
		stopCh:  make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)

	// Sync controls
	s.echo.POST("/sync", s.handleSync)
	s.echo.POST("/pause", s.handlePause)
	s.echo.POST("/resume", s.handleResume)
	s.echo.POST("/connectivity", s.handleConnectivity)

	// Capture
	s.echo.GET("/photos", s.handleListPhotos)
	s.echo.POST("/photos", s.handleStorePhoto)
	s.echo.GET("/readings", s.handleListReadings)
	s.echo.POST("/readings", s.handleAddReading)

	// History
	s.echo.GET("/history", s.handleHistory)
	s.echo.GET("/stats", s.handleStats)
	s.echo.GET("/abandoned", s.handleAbandoned)
}

func (s *Server) Start() {
	go func() {
		addr := "127.0.0.1:" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleSync(c echo.Context) error {
	summary, err := s.orch.SyncOfflinePhotos()
	switch {
	case errors.Is(err, ErrSyncInProgress):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrPaused):
		return c.JSON(http.StatusLocked, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrStopped):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handlePause(c echo.Context) error {
	if err := s.orch.PauseSync(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(c echo.Context) error {
	if err := s.orch.ResumeSync(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "resumed"})
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (s *Server) handleConnectivity(c echo.Context) error {
	var req connectivityRequest
	if err := c.Bind(&req); err != nil || req.Online == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "online required"})
	}

	s.signal.Set(*req.Online)
	return c.JSON(http.StatusOK, map[string]bool{"online": *req.Online})
}

func (s *Server) handleListPhotos(c echo.Context) error {
	photos, err := s.orch.PendingPhotos()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if photos == nil {
		photos = []model.PendingPhoto{}
	}

	return c.JSON(http.StatusOK, photos)
}

func (s *Server) handleStorePhoto(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file required"})
	}
	if fh.Size > maxPhotoSize {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "photo too large"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	defer func() { _ = f.Close() }()

	payload, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	meta := model.PhotoMetadata{
		FileName:     fh.Filename,
		ContentType:  fh.Header.Get("Content-Type"),
		PropertyID:   c.FormValue("property_id"),
		UnitID:       c.FormValue("unit_id"),
		InspectionID: c.FormValue("inspection_id"),
	}
	if meta.ContentType == "application/octet-stream" {
		meta.ContentType = ""
	}
	if v := c.FormValue("captured_at"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "captured_at must be RFC3339"})
		}
		meta.CapturedAt = at
	}

	id, err := s.orch.StorePhotoOffline(payload, meta)
	if err != nil {
		return c.JSON(storeErrorStatus(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListReadings(c echo.Context) error {
	readings, err := s.orch.PendingReadings()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if readings == nil {
		readings = []model.Reading{}
	}

	return c.JSON(http.StatusOK, readings)
}

type addReadingRequest struct {
	SourceID      string  `json:"source_id"`
	Value         float64 `json:"value"`
	EffectiveDate string  `json:"effective_date"`
	Comment       string  `json:"comment"`
}

func (s *Server) handleAddReading(c echo.Context) error {
	var req addReadingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid reading"})
	}

	date, err := time.Parse(time.DateOnly, req.EffectiveDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "effective_date must be YYYY-MM-DD"})
	}

	r, err := s.orch.AddReading(model.Reading{
		SourceID:      req.SourceID,
		Value:         req.Value,
		EffectiveDate: date,
		Comment:       req.Comment,
	})
	if err != nil {
		return c.JSON(storeErrorStatus(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, map[string]string{"id": r.ID})
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	histories, err := s.history.GetRecent(n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.history.GetStats()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, stats)
}

// handleAbandoned lists photos dropped after exhausting their attempts.
// since is a Go duration looking back from now and defaults to a week.
func (s *Server) handleAbandoned(c echo.Context) error {
	window := 7 * 24 * time.Hour
	if v := c.QueryParam("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "since must be a positive duration"})
		}
		window = d
	}

	items, err := s.history.GetAbandoned(time.Now().Add(-window))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if items == nil {
		items = []model.Abandonment{}
	}

	return c.JSON(http.StatusOK, items)
}

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, offline.ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, offline.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
