package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Manager serves the current config and keeps it in step with its file.
// Readers never block; writers are serialized.
type Manager struct {
	path string
	cur  atomic.Pointer[Config]

	mu      sync.Mutex
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	if _, err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config; Update keeps it in memory only.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cur.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if cfg := m.cur.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cur.Store(cfg)
	m.stampLocked()
	return cfg, nil
}

// Update validates cfg, writes it to the backing file when there is one and
// makes it current. An invalid cfg leaves the current config in place.
func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		m.stampLocked()
	}
	m.cur.Store(cfg)
	return nil
}

// NeedsReload reports whether the file changed since it was last read or
// written through this Manager.
func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return info.ModTime().After(m.modTime), nil
}

// Watch polls the file every interval and calls onReload with each newly
// loaded config until stop is closed. Load failures go to onError and keep the
// previous config.
func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		<-stop
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		cfg, err := m.poll()
		switch {
		case err != nil:
			if onError != nil {
				onError(err)
			}
		case cfg != nil && onReload != nil:
			onReload(cfg)
		}
	}
}

func (m *Manager) poll() (*Config, error) {
	changed, err := m.NeedsReload()
	if err != nil || !changed {
		return nil, err
	}
	return m.Reload()
}

func (m *Manager) stampLocked() {
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
}

// ResolvePath makes a relative config path absolute against the working
// directory. On failure the path is returned as given.
func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
