package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

type Dependencies struct {
	Logger *zap.Logger
	Addr   string
	Engine *service.Engine

	// Location is the zone for date filters and export formatting.
	Location    *time.Location
	ExportLimit int
	Now         func() time.Time
}

type Server struct {
	httpServer  *http.Server
	logger      *zap.Logger
	engine      *service.Engine
	loc         *time.Location
	exportLimit int
	now         func() time.Time
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.ExportLimit <= 0 {
		d.ExportLimit = 10000
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	s := &Server{
		logger:      d.Logger,
		engine:      d.Engine,
		loc:         d.Location,
		exportLimit: d.ExportLimit,
		now:         d.Now,
	}

	r := gin.New()
	r.Use(requestID(), accessLog(d.Logger), recovery(d.Logger))

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/v1", requireOperator(d.Engine.Registry))
	v1.POST("/events", s.handleRecordEvent)
	v1.GET("/presence", s.handleListPresent)
	v1.GET("/presence/counts", s.handlePresentCounts)
	v1.GET("/presence/:kind/:id", s.handleIsPresent)
	v1.GET("/visits", s.handleListVisits)
	v1.GET("/export/visits", s.handleExportVisits)
	v1.GET("/export/presence", s.handleExportPresence)
	v1.GET("/employees", s.handleRoster(types.KindEmployee))
	v1.GET("/vehicles", s.handleRoster(types.KindVehicle))
	v1.GET("/export/employees", s.handleExportRoster(types.KindEmployee))
	v1.GET("/export/vehicles", s.handleExportRoster(types.KindVehicle))
	v1.GET("/locations", s.handleLocations)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "server_time": s.now().UTC().Format(time.RFC3339Nano)})
}
