package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"superstore/ml"
)

// ErrModelUnavailable 模型文件不存在
var ErrModelUnavailable = ml.ErrModelUnavailable

// ModelStore 懒加载、只读共享的模型。文件被重写后缓存失效
type ModelStore struct {
	path   string
	logger *zap.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	predictor *ml.Predictor

	// OnChange 模型文件变化后调用（在 watch 协程中）
	OnChange func(path string)

	watchReady chan struct{}
}

var _ ml.ModelProvider = (*ModelStore)(nil)

func NewModelStore(path string, logger *zap.Logger) *ModelStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelStore{path: filepath.Clean(path), logger: logger.Named("models")}
}

// Path 模型文件路径
func (m *ModelStore) Path() string {
	return m.path
}

// Predictor 返回缓存的预测器，首次调用时加载。并发调用只读一次文件
func (m *ModelStore) Predictor(ctx context.Context) (*ml.Predictor, error) {
	m.mu.RLock()
	p := m.predictor
	m.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	ch := m.group.DoChan(m.path, func() (any, error) {
		p, err := ml.LoadModel(m.path)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.predictor = p
		m.mu.Unlock()
		m.logger.Info("model loaded", zap.String("path", m.path), zap.Time("trained_at", p.Artifact().TrainedAt))
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ml.Predictor), nil
	}
}

// Loaded 是否已有缓存的模型
func (m *ModelStore) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.predictor != nil
}

// Invalidate 丢弃缓存，下次调用重新加载
func (m *ModelStore) Invalidate() {
	m.mu.Lock()
	m.predictor = nil
	m.mu.Unlock()
	m.group.Forget(m.path)
}

// Watch 监听模型目录，文件被替换或删除时失效缓存。阻塞直到 ctx 取消
func (m *ModelStore) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	m.logger.Info("watching model artifact", zap.String("path", m.path))
	if m.watchReady != nil {
		close(m.watchReady)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != m.path {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			m.Invalidate()
			m.logger.Info("model artifact changed", zap.String("op", ev.Op.String()))
			if m.OnChange != nil {
				m.OnChange(m.path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}
