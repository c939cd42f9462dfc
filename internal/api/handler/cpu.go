package handler

import (
	"sync"
	"time"
)

// cpuSampler reports process CPU usage between two calls.
type cpuSampler struct {
	mu       sync.Mutex
	lastCPU  time.Duration
	lastWall time.Time
	read     func() (time.Duration, error)
}

func newCPUSampler() *cpuSampler {
	return &cpuSampler{read: processCPUTime}
}

// Percent returns single-core CPU usage since the previous call, capped at
// 100. The first call returns 0.
func (s *cpuSampler) Percent() float64 {
	cpu, err := s.read()
	if err != nil {
		return 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.lastWall.IsZero()
	cpuDelta := cpu - s.lastCPU
	wallDelta := now.Sub(s.lastWall)
	s.lastCPU, s.lastWall = cpu, now

	if first || wallDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	return min(float64(cpuDelta)/float64(wallDelta)*100, 100)
}
