// Package fake implements an in-memory ring light for testing.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/lumenbio/bioreactor/components/ringlight"
)

// RingLight tracks color state without hardware.
type RingLight struct {
	mu      sync.Mutex
	color   ringlight.Color
	on      bool
	failSet bool
}

// New returns a dark fake ring light.
func New() *RingLight {
	return &RingLight{}
}

// FailNextSet makes the next SetColor call fail (restore paths must still run).
func (r *RingLight) FailNextSet() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSet = true
}

// SetColor implements ringlight.RingLight.
func (r *RingLight) SetColor(ctx context.Context, color ringlight.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSet {
		r.failSet = false
		return errors.New("fake ring light set failure")
	}
	r.color = color
	r.on = color != ringlight.Off
	return nil
}

// SetPixel implements ringlight.RingLight.
func (r *RingLight) SetPixel(ctx context.Context, pixel int, color ringlight.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.on = r.on || color != ringlight.Off
	return nil
}

// Off implements ringlight.RingLight.
func (r *RingLight) Off(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.color = ringlight.Off
	r.on = false
	return nil
}

// IsOn implements ringlight.RingLight.
func (r *RingLight) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// Color implements ringlight.RingLight.
func (r *RingLight) Color() ringlight.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.color
}
