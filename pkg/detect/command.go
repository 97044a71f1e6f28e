package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koelabs/koe/pkg/trigger"
)

// Action identifies what a confirmed command should do. The well-known
// actions below are understood by the built-in dispatchers; any other
// non-empty string is treated as a custom action and passed through to
// dispatchers verbatim.
type Action string

const (
	ActionNotify         Action = "notify"
	ActionStartRecording Action = "start-recording"
	ActionStopRecording  Action = "stop-recording"
	ActionToggleOption   Action = "toggle-option"
)

// Known reports whether a is one of the built-in actions.
func (a Action) Known() bool {
	switch a {
	case ActionNotify, ActionStartRecording, ActionStopRecording, ActionToggleOption:
		return true
	default:
		return false
	}
}

// VoiceCommand binds a trigger phrase to an action. Commands form an
// ordered list; the first enabled command whose trigger matches wins.
// Duplicate triggers are allowed, later ones are shadowed.
type VoiceCommand struct {
	ID        string    `json:"id" msgpack:"id"`
	Trigger   string    `json:"trigger" msgpack:"trigger"`
	Action    Action    `json:"action" msgpack:"action"`
	Enabled   bool      `json:"enabled" msgpack:"enabled"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
}

// NewCommand creates an enabled command with a fresh id.
func NewCommand(phrase string, action Action) VoiceCommand {
	return VoiceCommand{
		ID:        uuid.NewString(),
		Trigger:   phrase,
		Action:    action,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
}

// Validate checks that the command can be matched and dispatched.
func (c *VoiceCommand) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("detect: command has no id")
	}
	if trigger.Normalize(c.Trigger) == "" {
		return fmt.Errorf("detect: command %s has an empty trigger", c.ID)
	}
	if strings.TrimSpace(string(c.Action)) == "" {
		return fmt.Errorf("detect: command %s has an empty action", c.ID)
	}
	return nil
}

// DefaultCommands returns the built-in command list used when no list
// has been persisted yet.
func DefaultCommands() []VoiceCommand {
	return []VoiceCommand{
		NewCommand("koe", ActionNotify),
		NewCommand("kon", ActionStartRecording),
		NewCommand("rec", ActionStopRecording),
	}
}
