// Package fake implements a settable sensor for testing.
package fake

import (
	"context"
	"sync"
)

// Sensor returns a configurable value or error and counts reads.
type Sensor struct {
	mu    sync.Mutex
	value float64
	err   error
	reads int
}

// New returns a fake sensor that reads value.
func New(value float64) *Sensor {
	return &Sensor{value: value}
}

// SetValue changes what subsequent reads return.
func (s *Sensor) SetValue(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
}

// SetError makes subsequent reads fail with err; pass nil to clear.
func (s *Sensor) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Read implements sensor.Reader.
func (s *Sensor) Read(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return 0, s.err
	}
	return s.value, nil
}

// Reads returns how many times Read was called.
func (s *Sensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
