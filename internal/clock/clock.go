package clock

import (
	"sync"
	"time"
)

// Clock источник текущего времени. Все проверки окон (lead time, старт встречи)
// идут через него, чтобы тесты были детерминированными.
type Clock interface {
	Now() time.Time
}

// Real возвращает системное время в рабочей таймзоне платформы
type Real struct {
	loc *time.Location
}

// NewReal создаёт часы для указанной таймзоны
func NewReal(loc *time.Location) *Real {
	if loc == nil {
		loc = time.Local
	}
	return &Real{loc: loc}
}

func (c *Real) Now() time.Time {
	return time.Now().In(c.loc)
}

// Mock управляемые вручную часы для тестов
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock создаёт часы, остановленные на now
func NewMock(now time.Time) *Mock {
	return &Mock{now: now}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set переставляет часы
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance сдвигает часы вперёд на d
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
