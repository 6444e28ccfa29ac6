package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nudge/pkg/logx"
)

// Manager owns the config file: load, current value, change subscriptions,
// and an fsnotify watch with debounce. A validator can reject a bad hot
// reload before it is published to subscribers.
type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      *Config
	subs     []chan *Config
	validate func(*Config) error
	log      logx.Logger
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) {
	m.mu.Lock()
	m.log = log
	m.mu.Unlock()
}

// SetValidator installs an extra check run on every (re)load, after the
// built-in Validate.
func (m *Manager) SetValidator(fn func(*Config) error) {
	m.mu.Lock()
	m.validate = fn
	m.mu.Unlock()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := LoadFile(m.path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	validate := m.validate
	m.mu.Unlock()
	if validate != nil {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Subscribe(buffer int) <-chan *Config {
	ch := make(chan *Config, buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) publish(cfg *Config) {
	m.mu.RLock()
	subs := append([]chan *Config{}, m.subs...)
	m.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- cfg:
		default:
			// drop on slow subscriber; the next reload will catch it up
		}
	}
}

// Watch publishes a fresh config on every debounced file change. A reload
// that fails to parse or validate is logged and NOT published; the running
// config stays in effect.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	// debounce to avoid partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			cfg, err := m.Load()
			if err != nil {
				m.mu.RLock()
				log := m.log
				m.mu.RUnlock()
				log.Warn("config reload rejected", logx.Err(err))
				return
			}
			m.publish(cfg)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.Events:
			if ev.Name == filepath.Join(dir, file) {
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			}
		case <-w.Errors:
			// keep watching
		}
	}
}
