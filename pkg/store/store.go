// Package store persists the durable state of the koe pipeline: the
// enrolled voice profiles, the voice command list, and the pipeline
// settings. Everything is msgpack-encoded over a kv.Store, so the same
// code runs against Badger on disk and the in-memory store in tests.
//
// An optional storage.FileStore holds the sample archive: the raw WAV
// recordings a profile was trained from, kept so enrollment can be
// audited or re-run against a different model.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/koelabs/koe/pkg/detect"
	"github.com/koelabs/koe/pkg/kv"
	"github.com/koelabs/koe/pkg/storage"
	"github.com/koelabs/koe/pkg/voiceid"
)

// ErrNotFound is returned when a profile or the settings blob has never
// been saved.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence layer. Methods are safe for concurrent use
// as long as the underlying kv.Store is.
type Store struct {
	kv    kv.Store
	files storage.FileStore
}

// Option configures a Store.
type Option func(*Store)

// WithSampleArchive attaches a file store for raw enrollment WAVs.
// Without it the sample methods are no-ops.
func WithSampleArchive(fs storage.FileStore) Option {
	return func(s *Store) { s.files = fs }
}

// New creates a Store over the given kv backend.
func New(kvStore kv.Store, opts ...Option) *Store {
	s := &Store{kv: kvStore}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveProfile writes a voice profile under its name, replacing any
// previous version.
func (s *Store) SaveProfile(ctx context.Context, p *voiceid.VoiceProfile) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("store: profile needs a name")
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode profile %q: %w", p.Name, err)
	}
	if err := s.kv.Set(ctx, profileKey(p.Name), data); err != nil {
		return fmt.Errorf("store: save profile %q: %w", p.Name, err)
	}
	return nil
}

// LoadProfile reads a voice profile by name. Returns ErrNotFound if no
// profile with that name was ever saved.
func (s *Store) LoadProfile(ctx context.Context, name string) (*voiceid.VoiceProfile, error) {
	data, err := s.kv.Get(ctx, profileKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("store: profile %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load profile %q: %w", name, err)
	}
	var p voiceid.VoiceProfile
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("store: decode profile %q: %w", name, err)
	}
	return &p, nil
}

// DeleteProfile removes a profile and its archived samples. Deleting a
// profile that does not exist is not an error.
func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	if err := s.kv.Delete(ctx, profileKey(name)); err != nil {
		return fmt.Errorf("store: delete profile %q: %w", name, err)
	}
	if err := s.deleteSamples(ctx, name); err != nil {
		return fmt.Errorf("store: delete profile %q samples: %w", name, err)
	}
	return nil
}

// ListProfiles returns the names of all saved profiles in lexicographic
// order.
func (s *Store) ListProfiles(ctx context.Context) ([]string, error) {
	var names []string
	for entry, err := range s.kv.List(ctx, profilePrefix()) {
		if err != nil {
			return nil, fmt.Errorf("store: list profiles: %w", err)
		}
		if len(entry.Key) == 2 {
			names = append(names, entry.Key[1])
		}
	}
	return names, nil
}

// SaveCommands replaces the whole command list. Order is preserved and
// is meaningful: the pipeline matches commands first to last.
func (s *Store) SaveCommands(ctx context.Context, commands []detect.VoiceCommand) error {
	var stale []kv.Key
	for entry, err := range s.kv.List(ctx, commandPrefix()) {
		if err != nil {
			return fmt.Errorf("store: list commands: %w", err)
		}
		stale = append(stale, entry.Key)
	}
	if len(stale) > 0 {
		if err := s.kv.BatchDelete(ctx, stale); err != nil {
			return fmt.Errorf("store: clear commands: %w", err)
		}
	}
	if len(commands) == 0 {
		return nil
	}
	entries := make([]kv.Entry, 0, len(commands))
	for i, c := range commands {
		data, err := msgpack.Marshal(c)
		if err != nil {
			return fmt.Errorf("store: encode command %s: %w", c.ID, err)
		}
		entries = append(entries, kv.Entry{Key: commandKey(i, c.ID), Value: data})
	}
	if err := s.kv.BatchSet(ctx, entries); err != nil {
		return fmt.Errorf("store: save commands: %w", err)
	}
	return nil
}

// LoadCommands returns the saved command list in its original order, or
// nil if no list was ever saved.
func (s *Store) LoadCommands(ctx context.Context) ([]detect.VoiceCommand, error) {
	var commands []detect.VoiceCommand
	for entry, err := range s.kv.List(ctx, commandPrefix()) {
		if err != nil {
			return nil, fmt.Errorf("store: list commands: %w", err)
		}
		var c detect.VoiceCommand
		if err := msgpack.Unmarshal(entry.Value, &c); err != nil {
			return nil, fmt.Errorf("store: decode command %v: %w", entry.Key, err)
		}
		commands = append(commands, c)
	}
	return commands, nil
}

// SaveSettings writes the pipeline settings blob.
func (s *Store) SaveSettings(ctx context.Context, settings detect.Settings) error {
	data, err := msgpack.Marshal(settings)
	if err != nil {
		return fmt.Errorf("store: encode settings: %w", err)
	}
	if err := s.kv.Set(ctx, settingsKey(), data); err != nil {
		return fmt.Errorf("store: save settings: %w", err)
	}
	return nil
}

// LoadSettings reads the pipeline settings blob. Returns ErrNotFound if
// settings were never saved; callers fall back to detect.DefaultSettings.
func (s *Store) LoadSettings(ctx context.Context) (detect.Settings, error) {
	data, err := s.kv.Get(ctx, settingsKey())
	if errors.Is(err, kv.ErrNotFound) {
		return detect.Settings{}, fmt.Errorf("store: settings: %w", ErrNotFound)
	}
	if err != nil {
		return detect.Settings{}, fmt.Errorf("store: load settings: %w", err)
	}
	var settings detect.Settings
	if err := msgpack.Unmarshal(data, &settings); err != nil {
		return detect.Settings{}, fmt.Errorf("store: decode settings: %w", err)
	}
	return settings, nil
}

// Close closes the underlying kv store. The file store, if any, is not
// owned by the Store and stays open.
func (s *Store) Close() error {
	return s.kv.Close()
}
