package client

import (
	"fmt"
	"sync"
	"time"
)

type Level string

const (
	LevelLoading Level = "loading"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Status is the outcome of the latest operation.
type Status struct {
	Level   Level
	Message string
	At      time.Time
}

func (s Status) String() string {
	return fmt.Sprintf("[%s] %s", s.Level, s.Message)
}

// StatusLine holds the latest status shared by all collections.
type StatusLine struct {
	mu      sync.RWMutex
	current Status
	now     func() time.Time
}

func NewStatusLine() *StatusLine {
	return &StatusLine{now: time.Now}
}

func (s *StatusLine) Set(level Level, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Status{Level: level, Message: fmt.Sprintf(format, args...), At: s.now()}
}

func (s *StatusLine) Current() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
