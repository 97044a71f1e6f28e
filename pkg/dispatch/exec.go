package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/koelabs/koe/pkg/detect"
)

// DefaultHookTimeout bounds how long a hook may run.
const DefaultHookTimeout = 10 * time.Second

// Exec runs a shell hook per action. The hook sees the detection
// through KOE_* environment variables:
//
//	KOE_COMMAND_ID  command id
//	KOE_TRIGGER     trigger phrase
//	KOE_ACTION      action name
//	KOE_CONFIDENCE  verification confidence, three decimals
//	KOE_VERIFIED    "true" or "false"
//	KOE_TEXT        the recognized text that matched
//
// Actions without a hook are silently skipped.
type Exec struct {
	hooks   map[detect.Action]string
	timeout time.Duration
	log     *slog.Logger
}

// ExecConfig configures the hook dispatcher.
type ExecConfig struct {
	// Hooks maps actions to shell command lines, run with sh -c.
	Hooks map[detect.Action]string
	// Timeout per hook run, DefaultHookTimeout when zero.
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewExec(cfg ExecConfig) *Exec {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHookTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	hooks := make(map[detect.Action]string, len(cfg.Hooks))
	for action, hook := range cfg.Hooks {
		hooks[action] = hook
	}
	return &Exec{hooks: hooks, timeout: cfg.Timeout, log: cfg.Logger}
}

func (e *Exec) CommandDetected(ctx context.Context, d detect.Detection) error {
	hook := e.hooks[d.Command.Action]
	if hook == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", hook)
	cmd.Env = append(os.Environ(),
		"KOE_COMMAND_ID="+d.Command.ID,
		"KOE_TRIGGER="+d.Command.Trigger,
		"KOE_ACTION="+string(d.Command.Action),
		fmt.Sprintf("KOE_CONFIDENCE=%.3f", d.Confidence),
		fmt.Sprintf("KOE_VERIFIED=%t", d.IsVoiceVerified),
		"KOE_TEXT="+d.Text,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("dispatch: hook for %s: %w: %s", d.Command.Action, err, bytes.TrimSpace(out))
	}
	e.log.Debug("dispatch: hook finished", "action", string(d.Command.Action))
	return nil
}

func (e *Exec) EnabledChanged(ctx context.Context, enabled bool) error {
	return nil
}
