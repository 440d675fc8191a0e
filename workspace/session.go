// Package workspace 持有显式传递的运行状态：每个会话当前加载的订单表和筛选条件，
// 进程级只读的默认数据集，以及按需加载的模型。
package workspace

import (
	"sync"
	"time"

	"superstore/analytics"
	"superstore/pipeline"
)

// Session 一个看板会话。上传的表只属于本会话
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	table    *pipeline.Table
	source   string
	filter   analytics.Filter
	loadedAt time.Time
}

// State 会话快照，供接口返回
type State struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Source    string           `json:"source,omitempty"`
	LoadedAt  *time.Time       `json:"loaded_at,omitempty"`
	Rows      int              `json:"rows"`
	Filter    analytics.Filter `json:"filter"`
}

func newSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now().UTC()}
}

// Table 会话上传的表，未上传时为 nil
func (s *Session) Table() *pipeline.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Source 数据来源（文件名）
func (s *Session) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Filter 当前筛选条件
func (s *Session) Filter() analytics.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetFilter 替换筛选条件
func (s *Session) SetFilter(f analytics.Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// State 当前快照
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{ID: s.ID, CreatedAt: s.CreatedAt, Source: s.source, Filter: s.filter}
	if s.table != nil {
		st.Rows = s.table.Len()
		loaded := s.loadedAt
		st.LoadedAt = &loaded
	}
	return st
}

// setTable 整表替换，旧表不再被修改
func (s *Session) setTable(t *pipeline.Table, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
	s.source = source
	s.loadedAt = time.Now().UTC()
	// 新数据的候选值可能不同，旧条件作废
	s.filter = analytics.Filter{}
}
