package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

var (
	ErrInvalidCommand   = errors.New("command type is required")
	ErrDuplicateCommand = errors.New("command already processed")
	ErrUnknownCommand   = errors.New("unknown command type")
	ErrMissingUID       = errors.New("uid is required")
	ErrBadPayload       = errors.New("bad command payload")
)

// EventPublisher injects events onto the bus without blocking.
type EventPublisher interface {
	Publish(e types.Event) bool
}

type CommandTimeouts struct {
	// Default bounds single-key commands.
	Default time.Duration
	// Bulk bounds commands that touch whole partitions.
	Bulk time.Duration
}

// CommandService applies cloud and operator commands to the classification
// store. Each command runs in one guard scope together with its duplicate
// check, its log entry and the bookkeeping of its ID.
type CommandService struct {
	guard    *guard.Guard
	bus      EventPublisher
	moduleID string
	timeouts CommandTimeouts
	logger   *zap.Logger
	now      func() time.Time
}

func NewCommandService(g *guard.Guard, bus EventPublisher, moduleID string, timeouts CommandTimeouts, logger *zap.Logger) *CommandService {
	if timeouts.Default <= 0 {
		timeouts.Default = guard.DefaultTimeout
	}
	if timeouts.Bulk <= 0 {
		timeouts.Bulk = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandService{
		guard:    g,
		bus:      bus,
		moduleID: moduleID,
		timeouts: timeouts,
		logger:   logger.Named("commands"),
		now:      time.Now,
	}
}

// Execute runs one command. The response is filled in whenever the command
// was processed, including the ErrMissingUID, ErrBadPayload and
// ErrUnknownCommand cases; their IDs are recorded like any other. A guard
// timeout records nothing so the sender may retry.
func (s *CommandService) Execute(ctx context.Context, req types.CommandRequest) (types.CommandResponse, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Type = types.CommandType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if req.Type == "" {
		return types.CommandResponse{}, ErrInvalidCommand
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Source == "" {
		req.Source = "local"
	}

	resp := types.CommandResponse{CommandID: req.ID, ModuleID: s.moduleID}

	var execErr error
	err := s.guard.Do(ctx, s.timeoutFor(req.Type), func(h *guard.Handle) error {
		last, err := h.LastCommandID()
		if err != nil {
			return fmt.Errorf("Execute last id: %w", err)
		}
		if last == req.ID {
			return ErrDuplicateCommand
		}

		resp.Result, resp.Pending, execErr = s.apply(h, req)
		if execErr != nil && !IsProcessed(execErr) {
			return execErr
		}

		if err := h.SetLastCommandID(req.ID); err != nil {
			return fmt.Errorf("Execute record id: %w", err)
		}
		return nil
	})

	switch {
	case errors.Is(err, ErrDuplicateCommand):
		s.logger.Info("duplicate command ignored", zap.String("id", req.ID))
		return types.CommandResponse{CommandID: req.ID, ModuleID: s.moduleID}, err
	case err != nil:
		s.logger.Warn("command not processed",
			zap.String("id", req.ID),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		return types.CommandResponse{CommandID: req.ID, ModuleID: s.moduleID}, err
	}

	resp.OK = execErr == nil && !strings.HasSuffix(resp.Result, "_FAIL")
	resp.ServerTime = s.now().UTC().Format(time.RFC3339Nano)
	s.logger.Info("command processed",
		zap.String("id", req.ID),
		zap.String("type", string(req.Type)),
		zap.String("source", req.Source),
		zap.String("result", resp.Result),
	)
	return resp, execErr
}

func (s *CommandService) timeoutFor(t types.CommandType) time.Duration {
	switch t {
	case types.CmdSyncUIDs, types.CmdFactoryReset, types.CmdClear, types.CmdGetPending:
		return s.timeouts.Bulk
	default:
		return s.timeouts.Default
	}
}

// IsProcessed reports errors that still complete a command: its ID is
// recorded and the response carries a result.
func IsProcessed(err error) bool {
	return errors.Is(err, ErrMissingUID) ||
		errors.Is(err, ErrBadPayload) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, types.ErrInvalidUID)
}

func (s *CommandService) apply(h *guard.Handle, req types.CommandRequest) (string, []string, error) {
	switch req.Type {
	case types.CmdRemoteUnlock:
		if !s.bus.Publish(types.RemoteUnlock{Source: req.Source}) {
			return "REMOTE_UNLOCK_FAIL", nil, nil
		}
		s.log(h, types.LogRemoteUnlock, "", req.Source)
		return "REMOTE_UNLOCK_OK", nil, nil

	case types.CmdGetPending:
		pending := []string{}
		if err := h.ForEachPending(func(uid string) error {
			pending = append(pending, uid)
			return nil
		}); err != nil {
			return "", nil, fmt.Errorf("GET_PENDING: %w", err)
		}
		raw, err := json.Marshal(pending)
		if err != nil {
			return "", nil, err
		}
		s.log(h, types.LogUIDSync, "", "get_pending")
		return "PENDING:" + string(raw), pending, nil

	case types.CmdGetDebug:
		c, err := h.Counts()
		if err != nil {
			return "", nil, fmt.Errorf("GET_DEBUG: %w", err)
		}
		return fmt.Sprintf("WL:%d,BL:%d,PD:%d", c.Whitelist, c.Blacklist, c.Pending), nil, nil

	case types.CmdWhitelistAdd, types.CmdBlacklistAdd, types.CmdRemoveUID:
		return s.applyUID(h, req)

	case types.CmdSyncUIDs:
		return s.applySync(h, req)

	case types.CmdClear:
		p, err := types.ParsePartition(req.Partition)
		if err != nil {
			s.log(h, types.LogCommandError, "", "bad_partition")
			return "CLEAR_BAD_PARTITION", nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if err := h.ClearPartition(p); err != nil {
			return "", nil, fmt.Errorf("CLEAR: %w", err)
		}
		s.log(h, types.LogUIDSync, "", "clear:"+p.String())
		return "CLEAR_OK", nil, nil

	case types.CmdFactoryReset:
		if err := h.FactoryReset(); err != nil {
			return "", nil, fmt.Errorf("FACTORY_RESET: %w", err)
		}
		s.log(h, types.LogUIDSync, "", "factory_reset")
		return "FACTORY_RESET_OK", nil, nil

	default:
		s.log(h, types.LogCommandError, string(req.Type), "unknown_cmd")
		return "UNKNOWN_COMMAND", nil, ErrUnknownCommand
	}
}

func (s *CommandService) applyUID(h *guard.Handle, req types.CommandRequest) (string, []string, error) {
	if strings.TrimSpace(req.UID) == "" {
		s.log(h, types.LogCommandError, "", "missing_uid")
		return "MISSING_UID", nil, ErrMissingUID
	}
	uid, err := types.ParseUID(req.UID)
	if err != nil {
		s.log(h, types.LogCommandError, "", "invalid_uid")
		return "INVALID_UID", nil, err
	}

	switch req.Type {
	case types.CmdWhitelistAdd:
		ok, err := h.AddToWhitelist(uid, false)
		if err != nil {
			return "", nil, fmt.Errorf("WHITELIST_ADD: %w", err)
		}
		if !ok {
			s.log(h, types.LogCommandError, uid, "wl_failed")
			return "WHITELIST_ADD_FAIL", nil, nil
		}
		s.log(h, types.LogUIDWhitelisted, uid, req.Source)
		return "WHITELIST_ADD_OK", nil, nil

	case types.CmdBlacklistAdd:
		ok, err := h.AddToBlacklist(uid, false)
		if err != nil {
			return "", nil, fmt.Errorf("BLACKLIST_ADD: %w", err)
		}
		if !ok {
			s.log(h, types.LogCommandError, uid, "bl_failed")
			return "BLACKLIST_ADD_FAIL", nil, nil
		}
		s.log(h, types.LogUIDBlacklisted, uid, req.Source)
		return "BLACKLIST_ADD_OK", nil, nil

	default:
		if err := h.RemoveUID(uid); err != nil {
			return "", nil, fmt.Errorf("REMOVE_UID: %w", err)
		}
		s.log(h, types.LogUIDRemoved, uid, req.Source)
		return "REMOVE_UID_OK", nil, nil
	}
}

// applySync replaces all three partitions in one store call, so a failed
// write leaves the previous lists in place. Entries bypass the capacity
// ceiling; malformed UIDs are skipped and counted.
func (s *CommandService) applySync(h *guard.Handle, req types.CommandRequest) (string, []string, error) {
	if req.Payload == nil {
		return "SYNC_UIDS_NO_PAYLOAD", nil, ErrBadPayload
	}
	if req.Payload.Whitelist == nil || req.Payload.Blacklist == nil {
		return "SYNC_UIDS_BAD_PAYLOAD", nil, ErrBadPayload
	}

	skipped := 0
	valid := func(raws []string) []string {
		out := make([]string, 0, len(raws))
		for _, raw := range raws {
			uid, err := types.ParseUID(raw)
			if err != nil {
				skipped++
				continue
			}
			out = append(out, uid)
		}
		return out
	}
	wl, bl := valid(req.Payload.Whitelist), valid(req.Payload.Blacklist)

	if err := h.ReplaceAll(wl, bl); err != nil {
		return "", nil, fmt.Errorf("SYNC_UIDS: %w", err)
	}

	if _, err := h.VerifyCounts(); err != nil {
		s.logger.Warn("count verification failed after sync", zap.Error(err))
	}
	if skipped > 0 {
		s.logger.Warn("sync skipped malformed uids", zap.Int("skipped", skipped))
	}
	s.log(h, types.LogUIDSync, "", req.Source)
	return "SYNC_UIDS_OK", nil, nil
}

// log writes inside the caller's guard scope. A failed write never fails
// the command.
func (s *CommandService) log(h *guard.Handle, kind types.LogKind, uid, info string) {
	if err := h.Log(kind, uid, info); err != nil {
		s.logger.Warn("access log entry skipped", zap.String("kind", string(kind)), zap.Error(err))
	}
}
