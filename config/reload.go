// 配置热重载。
//
// Reloader 监听配置文件，重新加载并校验后通知订阅者。
// 仅 HotReloadableFields 中的字段可在运行时生效，其余字段的变更只记录告警。
package config

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HotReloadableFields 运行时可生效的字段（yaml 路径）
var HotReloadableFields = map[string]bool{
	"log.level":               true,
	"notification.rate_limit": true,
	"notification.burst":      true,
}

// IsHotReloadable 判断字段是否可在运行时生效
func IsHotReloadable(path string) bool {
	return HotReloadableFields[path]
}

// ConfigChange 单个字段的变更
type ConfigChange struct {
	Path            string `json:"path"`
	OldValue        any    `json:"old_value"`
	NewValue        any    `json:"new_value"`
	RequiresRestart bool   `json:"requires_restart"`
}

// ReloadCallback 在新配置生效后调用
type ReloadCallback func(oldConfig, newConfig *Config, changes []ConfigChange)

// Reloader 配置热重载器
type Reloader struct {
	path    string
	watcher *FileWatcher
	logger  *zap.Logger

	mu        sync.RWMutex
	current   *Config
	callbacks []ReloadCallback
}

// NewReloader 创建热重载器，initial 为当前生效的配置
func NewReloader(path string, initial *Config, logger *zap.Logger, opts ...WatcherOption) (*Reloader, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "config_reloader"))

	opts = append([]WatcherOption{
		WithWatcherLogger(logger),
		WithDebounceDelay(500 * time.Millisecond),
	}, opts...)
	watcher, err := NewFileWatcher(path, opts...)
	if err != nil {
		return nil, err
	}

	return &Reloader{
		path:    path,
		watcher: watcher,
		logger:  logger,
		current: initial,
	}, nil
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Run 监听配置文件直到 ctx 结束
func (r *Reloader) Run(ctx context.Context) {
	r.watcher.Run(ctx, func() {
		if _, err := r.Reload(); err != nil {
			r.logger.Error("config reload failed, keeping current config", zap.Error(err))
		}
	})
}

// Reload 重新加载配置文件。加载或校验失败时保留当前配置。
// 没有字段变化时不调用回调。
func (r *Reloader) Reload() ([]ConfigChange, error) {
	next, err := NewLoader().WithConfigPath(r.path).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r.mu.Lock()
	prev := r.current
	changes := DiffConfig(prev, next)
	if len(changes) == 0 {
		r.mu.Unlock()
		return nil, nil
	}
	r.current = next
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	for _, c := range changes {
		if c.RequiresRestart {
			r.logger.Warn("config field changed, restart required to apply",
				zap.String("path", c.Path))
			continue
		}
		r.logger.Info("config field reloaded",
			zap.String("path", c.Path),
			zap.Any("old_value", redact(c.Path, c.OldValue)),
			zap.Any("new_value", redact(c.Path, c.NewValue)))
	}

	for _, cb := range callbacks {
		cb(prev, next, changes)
	}
	return changes, nil
}

// DiffConfig 比较两份配置，按 yaml 路径返回变化的叶子字段
func DiffConfig(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	diffStruct("", reflect.ValueOf(*oldConfig), reflect.ValueOf(*newConfig), &changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func diffStruct(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := strings.Split(field.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			name = strings.ToLower(field.Name)
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		o, n := oldVal.Field(i), newVal.Field(i)
		if field.Type.Kind() == reflect.Struct {
			diffStruct(path, o, n, changes)
			continue
		}
		if !reflect.DeepEqual(o.Interface(), n.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:            path,
				OldValue:        o.Interface(),
				NewValue:        n.Interface(),
				RequiresRestart: !IsHotReloadable(path),
			})
		}
	}
}

// redact 遮盖敏感字段的值
func redact(path string, v any) any {
	lower := strings.ToLower(path)
	for _, marker := range []string{"password", "key", "secret", "token"} {
		if strings.Contains(lower, marker) && !strings.HasSuffix(lower, "key_prefix") {
			return "***"
		}
	}
	return v
}
