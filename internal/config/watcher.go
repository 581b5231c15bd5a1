package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigWatcher 配置监听器
// 配置文件变更时重新加载,并通知已注册的回调
type ConfigWatcher struct {
	config     *Config
	configPath string
	viper      *viper.Viper
	callbacks  []func(*Config)
	editorCbs  []func(EditorConfig)
	mu         sync.RWMutex
	stopped    bool
	stopMu     sync.RWMutex
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(cfg *Config, configPath string) *ConfigWatcher {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigWatcher{
		config:     cfg,
		configPath: configPath,
		viper:      v,
	}
}

// OnConfigChange 注册配置变更回调
func (w *ConfigWatcher) OnConfigChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// OnEditorChange 注册编辑器配置变更回调,只有 editor 段发生变化时才调用
func (w *ConfigWatcher) OnEditorChange(callback func(EditorConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.editorCbs = append(w.editorCbs, callback)
}

// Start 启动配置监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		w.stopMu.RLock()
		stopped := w.stopped
		w.stopMu.RUnlock()
		if stopped {
			return
		}

		var newCfg Config
		if err := w.viper.Unmarshal(&newCfg); err != nil {
			logrus.WithError(err).Error("failed to unmarshal config")
			return
		}
		w.apply(&newCfg)
	})
	w.viper.WatchConfig()

	return nil
}

// apply 替换当前配置并调用回调（回调在锁外执行,避免死锁）
func (w *ConfigWatcher) apply(newCfg *Config) {
	w.mu.Lock()
	old := w.config
	w.config = newCfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	editorCbs := make([]func(EditorConfig), len(w.editorCbs))
	copy(editorCbs, w.editorCbs)
	w.mu.Unlock()

	for _, callback := range callbacks {
		callback(newCfg)
	}
	if old == nil || !reflect.DeepEqual(old.Editor, newCfg.Editor) {
		for _, callback := range editorCbs {
			callback(newCfg.Editor)
		}
	}
}

// Stop 停止配置监听
func (w *ConfigWatcher) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	w.stopped = true
}
