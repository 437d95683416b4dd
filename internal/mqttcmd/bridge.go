// Package mqttcmd feeds commands received over MQTT into the command
// service and publishes an ack for each one.
package mqttcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const DefaultTopicPrefix = "portunus"

// Transport is the subset of Client the bridge needs.
type Transport interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Executor runs one command.
type Executor interface {
	Execute(ctx context.Context, req types.CommandRequest) (types.CommandResponse, error)
}

// Ack is published on the acks topic for every command that reached the
// command service, except duplicates.
type Ack struct {
	types.CommandResponse
	Error string `json:"error,omitempty"`
}

type BridgeConfig struct {
	TopicPrefix string
	ModuleID    string
	QoS         byte
	// Timeout bounds one command, guard waits included.
	Timeout time.Duration
}

type Bridge struct {
	transport Transport
	commands  Executor
	cfg       BridgeConfig
	logger    *zap.Logger
}

func NewBridge(t Transport, commands Executor, cfg BridgeConfig, logger *zap.Logger) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{transport: t, commands: commands, cfg: cfg, logger: logger.Named("mqttcmd")}
}

func (b *Bridge) CommandTopic() string {
	return fmt.Sprintf("%s/%s/commands", b.cfg.TopicPrefix, b.cfg.ModuleID)
}

func (b *Bridge) AckTopic() string {
	return fmt.Sprintf("%s/%s/acks", b.cfg.TopicPrefix, b.cfg.ModuleID)
}

// Start subscribes to the command topic.
func (b *Bridge) Start() error {
	if err := b.transport.Subscribe(b.CommandTopic(), b.cfg.QoS, b.onMessage); err != nil {
		return err
	}
	b.logger.Info("listening", zap.String("topic", b.CommandTopic()))
	return nil
}

func (b *Bridge) onMessage(_ string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()

	ack, ok := b.Handle(ctx, payload)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	return b.transport.Publish(b.AckTopic(), b.cfg.QoS, false, raw)
}

// Handle decodes and executes one command payload. The second result is
// false when no ack should be sent.
func (b *Bridge) Handle(ctx context.Context, payload []byte) (Ack, bool) {
	var req types.CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logger.Warn("bad command payload", zap.Error(err))
		return Ack{
			CommandResponse: types.CommandResponse{ModuleID: b.cfg.ModuleID, Result: "BAD_JSON"},
			Error:           "invalid JSON body",
		}, true
	}
	if req.Source == "" {
		req.Source = "mqtt"
	}

	resp, err := b.commands.Execute(ctx, req)
	switch {
	case err == nil:
		return Ack{CommandResponse: resp}, true
	case errors.Is(err, service.ErrDuplicateCommand):
		return Ack{}, false
	case service.IsProcessed(err):
		return Ack{CommandResponse: resp, Error: err.Error()}, true
	case errors.Is(err, service.ErrInvalidCommand):
		resp.Result = "INVALID_COMMAND"
	case errors.Is(err, guard.ErrTimeout):
		resp.Result = "BUSY"
	default:
		resp.Result = "ERROR"
	}
	if resp.ModuleID == "" {
		resp.ModuleID = b.cfg.ModuleID
	}
	resp.CommandID = req.ID
	return Ack{CommandResponse: resp, Error: err.Error()}, true
}
