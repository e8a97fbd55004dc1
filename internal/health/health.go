package health

import (
	"context"
	"net/http"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Checker reports whether an optional dependency is usable.
type Checker interface {
	IsHealthy() bool
}

// Server implements the gRPC health protocol and the HTTP /healthz probe on top of the same checks.
type Server struct {
	grpc_health_v1.UnimplementedHealthServer
	db       *sqlx.DB
	checkers map[string]Checker
	logger   logger.ZapLogger
}

func NewServer(db *sqlx.DB, log logger.ZapLogger) *Server {
	return &Server{
		db:       db,
		checkers: make(map[string]Checker),
		logger:   log,
	}
}

// Register adds a named dependency. Not safe to call once serving.
func (s *Server) Register(name string, c Checker) {
	s.checkers[name] = c
}

func (s *Server) status(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := map[string]string{"database": "up"}
	ok := true
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("Database health check failed", zap.Error(err))
		out["database"] = "down"
		ok = false
	}
	for name, c := range s.checkers {
		if c.IsHealthy() {
			out[name] = "up"
			continue
		}
		s.logger.Error("Dependency health check failed", zap.String("dependency", name))
		out[name] = "down"
		ok = false
	}
	return out, ok
}

func (s *Server) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if _, ok := s.status(ctx); !ok {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

// Watch sends the current status once.
func (s *Server) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	resp, err := s.Check(stream.Context(), req)
	if err != nil {
		return err
	}
	return stream.Send(resp)
}

func (s *Server) HTTPHandler(c *gin.Context) {
	deps, ok := s.status(c.Request.Context())
	code := http.StatusOK
	state := "ok"
	if !ok {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{"status": state, "dependencies": deps})
}
