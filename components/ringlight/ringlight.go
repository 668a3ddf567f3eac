// Package ringlight defines the RGB ring illuminator that surrounds the
// culture vials. The driver is the single source of truth for the ring's
// current color; controllers query it rather than caching state.
package ringlight

import "context"

// A Color is an 8-bit-per-channel RGB triple.
type Color struct {
	R, G, B uint8
}

// Off is the all-zero color.
var Off = Color{}

// A RingLight is an addressable RGB ring.
type RingLight interface {
	// SetColor fills the whole ring with the given color.
	SetColor(ctx context.Context, color Color) error
	// SetPixel sets a single pixel.
	SetPixel(ctx context.Context, pixel int, color Color) error
	// Off blanks the ring.
	Off(ctx context.Context) error
	// IsOn reports whether any pixel is lit.
	IsOn() bool
	// Color returns the color last applied with SetColor (zero after Off or
	// if pixels were set individually).
	Color() Color
}
