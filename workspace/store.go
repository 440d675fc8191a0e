package workspace

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"superstore/analytics"
	"superstore/monitoring"
	"superstore/pipeline"
)

var (
	// ErrSessionNotFound 会话不存在或已被淘汰
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoDataset 既没有上传数据也没有默认数据集
	ErrNoDataset = errors.New("no dataset loaded")
)

const DefaultMaxSessions = 256

// Options 工作区配置
type Options struct {
	MaxSessions    int
	DefaultDataset string
	Format         pipeline.ReadOptions
}

// Store 会话缓存与默认数据集
type Store struct {
	sessions *lru.Cache[string, *Session]
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.MetricsCollector

	defaultOnce  sync.Once
	defaultTable *pipeline.Table
	defaultErr   error
}

// NewStore 创建工作区。metrics 可以为 nil
func NewStore(opts Options, logger *zap.Logger, metrics *monitoring.MetricsCollector) (*Store, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Format.Comma == 0 {
		opts.Format = pipeline.SuperstoreFormat()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("workspace")

	cache, err := lru.NewWithEvict(opts.MaxSessions, func(id string, _ *Session) {
		logger.Debug("session evicted", zap.String("session", id))
	})
	if err != nil {
		return nil, err
	}
	return &Store{sessions: cache, opts: opts, logger: logger, metrics: metrics}, nil
}

// Create 新建空会话
func (s *Store) Create() *Session {
	sess := newSession(uuid.NewString())
	s.sessions.Add(sess.ID, sess)
	s.metrics.SetActiveSessions(s.sessions.Len())
	return sess
}

// Get 查找会话
func (s *Store) Get(id string) (*Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Delete 删除会话
func (s *Store) Delete(id string) bool {
	removed := s.sessions.Remove(id)
	s.metrics.SetActiveSessions(s.sessions.Len())
	return removed
}

// Len 当前会话数
func (s *Store) Len() int {
	return s.sessions.Len()
}

// Load 解析上传的文件并替换会话的表。读取失败时会话保持原状
func (s *Store) Load(id string, r io.Reader, source string) (*Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	t, err := s.read(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}
	sess.setTable(t, source)
	s.logger.Info("dataset loaded",
		zap.String("session", id),
		zap.String("source", source),
		zap.Int("rows", t.Len()),
		zap.Int("cell_issues", t.Issues.Total()))
	return sess, nil
}

func (s *Store) read(r io.Reader) (*pipeline.Table, error) {
	t, err := pipeline.ReadCSV(r, s.opts.Format)
	if err != nil {
		s.metrics.ObserveDatasetLoad(0, nil, err)
		return nil, err
	}
	t = pipeline.NewFeatureDeriver(s.logger).Derive(t)
	s.metrics.ObserveDatasetLoad(t.Len(), t.Issues, nil)
	return t, nil
}

// Default 默认数据集，首次调用时加载，之后只读共享
func (s *Store) Default() (*pipeline.Table, error) {
	s.defaultOnce.Do(func() {
		if s.opts.DefaultDataset == "" {
			s.defaultErr = ErrNoDataset
			return
		}
		t, err := pipeline.ReadFile(s.opts.DefaultDataset, s.opts.Format)
		if err != nil {
			s.metrics.ObserveDatasetLoad(0, nil, err)
			s.defaultErr = fmt.Errorf("default dataset %s: %w", s.opts.DefaultDataset, err)
			return
		}
		s.defaultTable = pipeline.NewFeatureDeriver(s.logger).Derive(t)
		s.metrics.ObserveDatasetLoad(t.Len(), t.Issues, nil)
		s.logger.Info("default dataset loaded",
			zap.String("path", s.opts.DefaultDataset),
			zap.Int("rows", s.defaultTable.Len()))
	})
	return s.defaultTable, s.defaultErr
}

// Active 会话当前使用的表：上传的表，否则默认数据集
func (s *Store) Active(id string) (*Session, *pipeline.Table, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if t := sess.Table(); t != nil {
		return sess, t, nil
	}
	t, err := s.Default()
	if err != nil {
		return sess, nil, err
	}
	return sess, t, nil
}

// Filtered 应用会话筛选条件后的表
func (s *Store) Filtered(id string) (*pipeline.Table, analytics.Filter, error) {
	sess, t, err := s.Active(id)
	if err != nil {
		return nil, analytics.Filter{}, err
	}
	f := sess.Filter()
	if f.IsZero() {
		return t, f, nil
	}
	return f.Apply(t), f, nil
}
