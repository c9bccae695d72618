package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	forecastFile  = "forecast_cache.json"
	lastAlertFile = "last_alert.txt"
	lockFile      = ".weatherbot.lock"
)

// FileStore keeps state as plain files in one directory. Writes go to a temp
// file that is renamed over the target while holding an advisory lock, so a
// second process never observes or produces a half-written file.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	lock   *flock.Flock
	logger *zap.Logger
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	return &FileStore{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockFile)),
		logger: logger.With(zap.String("store", BackendFile)),
	}, nil
}

func (s *FileStore) LoadForecast(_ context.Context) (*models.ForecastCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking state directory: %w", err)
	}
	defer s.lock.Unlock()

	return s.readForecast()
}

func (s *FileStore) SaveForecast(_ context.Context, entry models.ForecastCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking state directory: %w", err)
	}
	defer s.lock.Unlock()

	current, err := s.readForecast()
	switch {
	case err == nil:
		if !entry.FetchedAt.After(current.FetchedAt) {
			return ErrStale
		}
	case errors.Is(err, ErrNotFound):
	default:
		// An unreadable cache is replaced rather than kept forever.
		s.logger.Warn("Existing forecast cache unreadable, overwriting", zap.Error(err))
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding forecast cache: %w", err)
	}

	return s.writeAtomic(forecastFile, data)
}

func (s *FileStore) LoadLastAlert(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return "", fmt.Errorf("locking state directory: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, lastAlertFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading last alert: %w", err)
	}

	event := strings.TrimSpace(string(data))
	if event == "" {
		return "", ErrNotFound
	}
	return event, nil
}

func (s *FileStore) SaveLastAlert(_ context.Context, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking state directory: %w", err)
	}
	defer s.lock.Unlock()

	return s.writeAtomic(lastAlertFile, []byte(event))
}

func (s *FileStore) Close() error {
	return s.lock.Close()
}

func (s *FileStore) readForecast() (*models.ForecastCacheEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, forecastFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading forecast cache: %w", err)
	}

	var entry models.ForecastCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding forecast cache: %w", err)
	}
	if len(entry.Payload) == 0 {
		return nil, ErrNotFound
	}

	return &entry, nil
}

func (s *FileStore) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", name, err)
	}

	s.logger.Debug("State written", zap.String("file", name), zap.Int("bytes", len(data)))
	return nil
}
