// Package settings persists user preferences and caches the exit-prevention flag.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/traychat/internal/model"
	"github.com/capitalize-ai/traychat/pkg/logger"
	"github.com/capitalize-ai/traychat/pkg/metrics"
)

// ErrPersistence wraps every read, write or parse failure of the settings file.
var ErrPersistence = errors.New("settings persistence failed")

// Store is a file-backed settings store.
type Store struct {
	path   string
	logger *logger.Logger

	// fileMu serializes file access so a load never observes a half-written save.
	fileMu sync.Mutex

	exit *ExitGuard
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Global()
	}
	return &Store{
		path:   path,
		logger: log,
		exit:   &ExitGuard{},
	}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Exit returns the cached exit-prevention flag.
func (s *Store) Exit() *ExitGuard {
	return s.exit
}

// Load reads the persisted settings. If the file does not exist it is created
// with the given defaults. The cached exit-prevention flag is refreshed from
// the result.
func (s *Store) Load(defaultModel string, defaultPreventExit bool) (model.Settings, error) {
	settings, err := s.loadOrCreate(defaultModel, defaultPreventExit)
	if err != nil {
		return model.Settings{}, err
	}

	s.exit.set(settings.PreventExit)
	return settings, nil
}

func (s *Store) loadOrCreate(defaultModel string, defaultPreventExit bool) (model.Settings, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		settings := model.Settings{Model: defaultModel, PreventExit: defaultPreventExit}
		if err := s.write(settings); err != nil {
			return model.Settings{}, err
		}
		s.logger.Info("settings file created", zap.String("path", s.path))
		return settings, nil
	}
	if err != nil {
		metrics.SettingsOpsTotal.WithLabelValues("load", "error").Inc()
		return model.Settings{}, fmt.Errorf("%w: read %s: %w", ErrPersistence, s.path, err)
	}

	settings, err := parseSettings(data)
	if err != nil {
		metrics.SettingsOpsTotal.WithLabelValues("load", "error").Inc()
		return model.Settings{}, fmt.Errorf("%w: parse %s: %w", ErrPersistence, s.path, err)
	}

	metrics.SettingsOpsTotal.WithLabelValues("load", "ok").Inc()
	return settings, nil
}

// storedSettings tells absent fields apart from zero values.
type storedSettings struct {
	Model       *string `json:"model"`
	PreventExit *bool   `json:"prevent_exit"`
}

// parseSettings requires a JSON object carrying both fields. Extra fields are ignored.
func parseSettings(data []byte) (model.Settings, error) {
	var stored storedSettings
	if err := json.Unmarshal(data, &stored); err != nil {
		return model.Settings{}, err
	}

	var missing []string
	if stored.Model == nil {
		missing = append(missing, "model")
	}
	if stored.PreventExit == nil {
		missing = append(missing, "prevent_exit")
	}
	if len(missing) > 0 {
		return model.Settings{}, fmt.Errorf("missing field(s) %s", strings.Join(missing, ", "))
	}

	return model.Settings{Model: *stored.Model, PreventExit: *stored.PreventExit}, nil
}

// Save overwrites the persisted settings. It does not update the cached
// exit-prevention flag; call SetExitPrevention for that.
func (s *Store) Save(modelName string, preventExit bool) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	return s.write(model.Settings{Model: modelName, PreventExit: preventExit})
}

// SetExitPrevention updates the cached flag from the UI toggle. The toggle
// reports whether exit is allowed, so the stored flag is its negation.
func (s *Store) SetExitPrevention(exitAllowed bool) {
	s.exit.set(!exitAllowed)
}

// PreventExit reports whether a window close should hide to tray instead of exiting.
func (s *Store) PreventExit() bool {
	return s.exit.Get()
}

// write must be called with fileMu held. The file is replaced atomically.
func (s *Store) write(settings model.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		metrics.SettingsOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("%w: marshal: %w", ErrPersistence, err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		metrics.SettingsOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, s.path, err)
	}

	metrics.SettingsOpsTotal.WithLabelValues("save", "ok").Inc()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "traychat", "settings.json")
}
