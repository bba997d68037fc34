// 配置文件变更监听器实现。
//
// 以轮询方式检测单个配置文件的修改，经防抖后触发回调。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileWatcher 轮询单个文件的修改时间与大小
type FileWatcher struct {
	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration
	logger        *zap.Logger
}

// fileStamp 文件指纹；exists 为 false 表示文件不存在
type fileStamp struct {
	exists  bool
	modTime time.Time
	size    int64
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.pollInterval = d
	}
}

// WithDebounceDelay 设置防抖延迟，编辑器的多次写入合并为一次回调
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher 创建文件监听器。文件暂不存在时仅告警，创建后会触发回调。
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	if path == "" {
		return nil, errors.New("watch path is required")
	}
	w := &FileWatcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
		}
		w.logger.Warn("Config file does not exist, will watch for creation",
			zap.String("path", path))
	}
	return w, nil
}

// Path 返回监听的文件路径
func (w *FileWatcher) Path() string { return w.path }

// Run 阻塞轮询直到 ctx 结束。文件被创建或修改且在防抖窗口内不再变化时
// 调用 onChange；删除文件不触发回调。
func (w *FileWatcher) Run(ctx context.Context, onChange func()) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	last := w.stamp()
	var (
		pending   bool
		changedAt time.Time
	)

	w.logger.Info("File watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("File watcher stopped", zap.String("path", w.path))
			return
		case now := <-ticker.C:
			cur := w.stamp()
			if cur != last {
				last = cur
				if cur.exists {
					pending = true
					changedAt = now
				} else {
					pending = false
					w.logger.Warn("Config file removed", zap.String("path", w.path))
				}
				continue
			}
			if pending && now.Sub(changedAt) >= w.debounceDelay {
				pending = false
				w.logger.Debug("Dispatching config file change", zap.String("path", w.path))
				onChange()
			}
		}
	}
}

func (w *FileWatcher) stamp() fileStamp {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{exists: true, modTime: info.ModTime(), size: info.Size()}
}
