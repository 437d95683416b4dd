package hw

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExitPress is how long the exit input is held by the "exit" command;
// it must outlast the debounce window.
const ExitPress = 200 * time.Millisecond

// Script drives the simulated hardware from text commands:
//
//	card <hex uid>   present a card
//	exit             press the exit button
//	jam | unjam      stop or resume reader communication
type Script struct {
	Reader *Reader
	Exit   *Input
	Logger *zap.Logger
}

// Run reads commands from r until EOF or ctx is done.
func (s *Script) Run(ctx context.Context, r io.Reader) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.Apply(line); err != nil {
			logger.Warn("sim command rejected", zap.String("line", line), zap.Error(err))
		}
	}
	return sc.Err()
}

// Apply executes one command line.
func (s *Script) Apply(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "card":
		if len(fields) != 2 {
			return fmt.Errorf("usage: card <hex uid>")
		}
		serial, err := hex.DecodeString(fields[1])
		if err != nil {
			return fmt.Errorf("card uid: %w", err)
		}
		s.Reader.Present(serial)
	case "exit":
		if s.Exit == nil {
			return fmt.Errorf("no exit sensor")
		}
		s.Exit.Press(ExitPress)
	case "jam":
		s.Reader.Jam()
	case "unjam":
		s.Reader.Unjam()
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}
