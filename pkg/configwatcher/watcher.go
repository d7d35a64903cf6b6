package configwatcher

import (
	"path/filepath"
	"sync"
	"time"

	"exam_center_backend/internal/config"
	"exam_center_backend/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type ConfigReloader func(cfg interface{})

// WatchConfig 监听配置文件变更并回调reloader，用于分数阈值等参数热更新。
// 监听的是所在目录而不是文件本身：编辑器保存多为rename+create，
// 只盯文件inode会在第一次保存后失效。
func WatchConfig(configPath string, cfg interface{}, reloader ConfigReloader) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		logger.Log.Error("Config watcher: resolve path failed", zap.Error(err))
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Log.Error("Config watcher: init failed", zap.Error(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(absPath)
	if err := watcher.Add(dir); err != nil {
		logger.Log.Error("Config watcher: watch failed", zap.String("dir", dir), zap.Error(err))
		return
	}

	var mu sync.Mutex
	var debounce *time.Timer
	reload := func() {
		newCfg, err := config.LoadConfig(dir)
		if err != nil {
			logger.Log.Error("Config reload failed, keeping current config", zap.Error(err))
			return
		}
		logger.Log.Info("Config reloaded", zap.String("path", absPath))
		reloader(newCfg)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 防抖：一次保存可能触发多个事件
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(time.Second, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}
