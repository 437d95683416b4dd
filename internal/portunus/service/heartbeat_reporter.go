package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type ReporterConfig struct {
	ServerURL       string
	ModuleID        string
	FirmwareVersion string
	Interval        time.Duration
	Timeout         time.Duration
}

// HeartbeatReporter posts the controller's status to the Portunus server.
// An empty ServerURL disables it.
type HeartbeatReporter struct {
	client *resty.Client
	status *StatusService
	cfg    ReporterConfig
	logger *zap.Logger
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeatReporter(status *StatusService, cfg ReporterConfig, logger *zap.Logger) *HeartbeatReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.ServerURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HeartbeatReporter{
		client: client,
		status: status,
		cfg:    cfg,
		logger: logger.Named("heartbeat"),
		done:   make(chan struct{}),
	}
}

func (r *HeartbeatReporter) Start(ctx context.Context) {
	if r.cfg.ServerURL == "" {
		r.logger.Info("heartbeat reporter disabled (no server url)")
		close(r.done)
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)

	r.logger.Info("heartbeat reporter started",
		zap.String("server", r.cfg.ServerURL),
		zap.Duration("interval", r.cfg.Interval),
	)
}

// Stop signals the reporter to exit and waits for it to finish.
func (r *HeartbeatReporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *HeartbeatReporter) loop(ctx context.Context) {
	defer close(r.done)

	_, _ = r.SendOnce(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.SendOnce(ctx)
		}
	}
}

// Build assembles a heartbeat from cached state only.
func (r *HeartbeatReporter) Build(ctx context.Context) types.HeartbeatRequest {
	st := r.status.Status(ctx)
	r.seq++

	reader := st.Reader
	counts := st.Counts
	// DoorClosed stays nil: the controller has no door contact sensor.
	return types.HeartbeatRequest{
		ModuleID:        r.cfg.ModuleID,
		FirmwareVersion: r.cfg.FirmwareVersion,
		UptimeSeconds:   st.UptimeSeconds,
		Sequence:        r.seq,
		Reader:          &reader,
		Counts:          &counts,
		Door:            st.Door,
	}
}

// SendOnce posts one heartbeat. Failures are logged and returned; the next
// interval tries again.
func (r *HeartbeatReporter) SendOnce(ctx context.Context) (types.HeartbeatResponse, error) {
	req := r.Build(ctx)

	var out types.HeartbeatResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/heartbeat")
	if err != nil {
		r.logger.Warn("heartbeat failed", zap.Error(err))
		return types.HeartbeatResponse{}, fmt.Errorf("heartbeat: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		r.logger.Warn("heartbeat rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return types.HeartbeatResponse{}, fmt.Errorf("heartbeat: server returned %d", resp.StatusCode())
	}

	if !out.Known {
		r.logger.Warn("server does not know this module", zap.String("module_id", r.cfg.ModuleID))
	}
	r.logger.Debug("heartbeat sent", zap.Uint64("seq", req.Sequence))
	return out, nil
}
