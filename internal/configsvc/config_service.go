// Package configsvc watches configuration files and notifies clients
// of changes. Files are YAML on disk; values round-trip through JSON
// so struct tags stay in one vocabulary.
package configsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
	"go.uber.org/zap"
)

type subscriber func(event fsnotify.Event)

type Service struct {
	log *zap.Logger

	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	subscribers []subscriber
	running     chan struct{}
	ready       chan struct{}
}

func New(log *zap.Logger) *Service {
	svc := &Service{
		log:   log,
		ready: make(chan struct{}),
	}
	return svc
}

func (s *Service) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	s.watcher = watcher
	defer s.watcher.Close()
	s.running = make(chan struct{})
	defer close(s.running)
	close(s.ready)
	s.log.Info("Config service started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.mu.Lock()
			for _, sub := range s.subscribers {
				sub(event)
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error("Watcher error", zap.Error(err))
		}
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Register registers a configuration file to watch for changes and calls fn with the new configuration.
// It returns the initial configuration and an error if the file cannot be read.
// Service instance is used as a parameter instead of the method receiver to enable generic types.
func Register[T any](s *Service, path string, def T, fn func(config T, err error)) (T, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return def, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}
	config, err := readConfig(absPath, def)
	if err != nil {
		return def, fmt.Errorf("failed to read config: %w", err)
	}

	err = s.subscribe(absPath, func() {
		newConfig, err := readConfig(absPath, def)
		fn(newConfig, err)
	})
	if err != nil {
		return def, err
	}
	return config, nil
}

// Writer persists one writeable configuration file.
type Writer[T any] struct {
	path string
}

// Write rewrites the file. The watcher picks the write up and runs the
// registered callback like any external edit.
func (w *Writer[T]) Write(config T) error {
	return writeConfig(w.path, config)
}

// RegisterWriteable is Register for files the agent itself rewrites.
// A missing file is created from the default instead of failing, and
// the returned Writer persists later changes.
func RegisterWriteable[T any](s *Service, path string, def T, fn func(config T, err error)) (T, *Writer[T], error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return def, nil, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}
	config, err := readConfig(absPath, def)
	switch {
	case errors.Is(err, os.ErrNotExist):
		err = writeConfig(absPath, def)
		if err != nil {
			return def, nil, fmt.Errorf("failed to initialize config: %w", err)
		}
		config = def
	case err != nil:
		return def, nil, fmt.Errorf("failed to read config: %w", err)
	}

	err = s.subscribe(absPath, func() {
		newConfig, err := readConfig(absPath, def)
		fn(newConfig, err)
	})
	if err != nil {
		return def, nil, err
	}
	return config, &Writer[T]{path: absPath}, nil
}

func (s *Service) subscribe(absPath string, reload func()) error {
	dir := filepath.Dir(absPath)
	err := s.watcher.Add(dir)
	if err != nil {
		return fmt.Errorf("failed to add path to watcher %s: %w", absPath, err)
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, func(event fsnotify.Event) {
		// TODO: debounce
		if event.Name == absPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
			reload()
		}
	})
	s.mu.Unlock()
	return nil
}

func writeConfig[T any](path string, config T) error {
	jsonB, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	yamlB, err := yaml.JSONToYAML(jsonB)
	if err != nil {
		return fmt.Errorf("failed to convert json to yaml: %w", err)
	}

	err = os.WriteFile(path, yamlB, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func readConfig[T any](path string, def T) (T, error) {
	yamlB, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("failed to read config file: %w", err)
	}

	jsonB, err := yaml.YAMLToJSON(yamlB)
	if err != nil {
		return def, fmt.Errorf("failed to convert yaml to json: %w", err)
	}
	err = json.Unmarshal(jsonB, &def)
	if err != nil {
		return def, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return def, nil
}
