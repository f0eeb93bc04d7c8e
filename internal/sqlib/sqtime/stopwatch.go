// Copyright (c) 2016 - 2019 Sqreen. All Rights Reserved.
// Please refer to our terms for more information:
// https://www.sqreen.io/terms.html

package sqtime

import (
	"sync"
	"time"
)

// SharedStopWatch measures the time during which at least one of its
// concurrent measures is ongoing. Overlapping measures are only counted once.
type SharedStopWatch struct {
	lock    sync.Mutex
	ongoing int
	// Start time of the oldest ongoing measure.
	since    time.Time
	duration time.Duration
}

// Measure is an ongoing measure of a shared stopwatch.
type Measure struct {
	s     *SharedStopWatch
	start time.Time
}

// Start starts a new measure.
func (s *SharedStopWatch) Start() Measure {
	now := time.Now()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ongoing == 0 {
		s.since = now
	}
	s.ongoing++
	return Measure{s: s, start: now}
}

// Stop stops the measure and returns its own duration. The shared duration
// is updated when the last ongoing measure stops.
func (m Measure) Stop() time.Duration {
	now := time.Now()
	s := m.s
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ongoing--
	if s.ongoing == 0 {
		s.duration += now.Sub(s.since)
	}
	return now.Sub(m.start)
}

// Duration returns the shared duration of the stopped measures.
func (s *SharedStopWatch) Duration() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.duration
}
