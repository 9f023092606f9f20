// 配置文件变更监听。
//
// 轮询文件修改时间，变化时用同一个 Loader 重新加载，
// 新配置通过 Validate 后才通知订阅者。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 在配置成功重新加载后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// WatcherOption 配置 Watcher
type WatcherOption func(*Watcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher 监听配置文件并在变化时重新加载
type Watcher struct {
	loader   *Loader
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	current   *Config
	lastMod   time.Time
	callbacks []ReloadCallback
}

// NewWatcher 创建监听器。current 是已加载的当前配置。
func NewWatcher(loader *Loader, current *Config, opts ...WatcherOption) (*Watcher, error) {
	if loader.ConfigPath() == "" {
		return nil, errors.New("config watcher requires a config path")
	}
	w := &Watcher{
		loader:   loader,
		interval: time.Second,
		logger:   zap.NewNop(),
		current:  current,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	if info, err := os.Stat(loader.ConfigPath()); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return w, nil
}

// OnReload 注册重新加载回调
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current 返回当前生效的配置
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run 轮询配置文件直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("config watcher started",
		zap.String("path", w.loader.ConfigPath()),
		zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check 检查一次文件修改时间，有变化则重新加载。返回是否应用了新配置。
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.loader.ConfigPath())
	if err != nil {
		// 文件被删除时保留当前配置
		return false
	}

	w.mu.Lock()
	if !info.ModTime().After(w.lastMod) {
		w.mu.Unlock()
		return false
	}
	w.lastMod = info.ModTime()
	w.mu.Unlock()

	next, err := w.loader.Load()
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		w.logger.Warn("config reload rejected, keeping current config", zap.Error(err))
		return false
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	callbacks := append([]ReloadCallback(nil), w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.String("path", w.loader.ConfigPath()))
	for _, cb := range callbacks {
		w.safeCall(cb, prev, next)
	}
	return true
}

func (w *Watcher) safeCall(cb ReloadCallback, prev, next *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("config reload callback panicked", zap.Any("recover", r))
		}
	}()
	cb(prev, next)
}
