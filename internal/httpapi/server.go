package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type Dependencies struct {
	Logger   *zap.Logger
	Addr     string
	Commands *service.CommandService
	Status   *service.StatusService

	// RateLimit is requests per second across all clients; 0 disables
	// limiting.
	RateLimit float64
	Burst     int
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	commands   *service.CommandService
	status     *service.StatusService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("httpapi")

	s := &Server{
		logger:   logger,
		mux:      mux,
		commands: d.Commands,
		status:   d.Status,
	}

	mux.HandleFunc("POST /v1/commands", s.handleCommand)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/uids/pending", s.handlePending)
	mux.HandleFunc("GET /v1/logs", s.handleLogs)

	var handler http.Handler = mux
	if d.RateLimit > 0 {
		burst := d.Burst
		if burst <= 0 {
			burst = 1
		}
		handler = rateLimitMiddleware(rate.NewLimiter(rate.Limit(d.RateLimit), burst), handler)
	}
	handler = loggingMiddleware(logger, handler)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
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

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req types.CommandRequest

	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		var err error
		if req, err = commandRequestFromProto(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", err.Error())
			return
		}
	} else {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
			return
		}
	}
	if req.Source == "" {
		req.Source = "http"
	}

	resp, err := s.commands.Execute(r.Context(), req)
	status := http.StatusOK
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCommand):
			writeError(w, http.StatusBadRequest, "invalid_command", err.Error())
			return
		case errors.Is(err, service.ErrDuplicateCommand):
			status = http.StatusConflict
		case errors.Is(err, guard.ErrTimeout):
			writeError(w, http.StatusServiceUnavailable, "busy", "store busy, retry")
			return
		case service.IsProcessed(err):
			status = http.StatusUnprocessableEntity
		default:
			s.logger.Error("command error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
	}

	if isProtobuf(r) {
		msg, err := commandResponseToProto(resp)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status(r.Context()))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.status.Pending(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be 1-1000")
			return
		}
		limit = n
	}

	logs, err := s.status.RecentLogs(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, guard.ErrTimeout) {
		writeError(w, http.StatusServiceUnavailable, "busy", "store busy, retry")
		return
	}
	s.logger.Error("store read error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
}
