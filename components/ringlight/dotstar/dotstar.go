// Package dotstar implements the ring light on an APA102 ("DotStar") strip
// over SPI. Only the small slice of the wire format the ring needs is here;
// the strip is written whole on every change.
package dotstar

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/lumenbio/bioreactor/components/ringlight"
)

// Config describes the ring light strip.
type Config struct {
	SPIBus     string `json:"spi_bus"`
	NumPixels  int    `json:"num_pixels"`
	Brightness uint8  `json:"brightness,omitempty"` // 0-31, default 4
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.SPIBus == "" {
		return errors.Errorf("%s: expected spi_bus", path)
	}
	if cfg.NumPixels <= 0 {
		return errors.Errorf("%s: expected num_pixels", path)
	}
	return nil
}

const defaultBrightness = 4

type ring struct {
	mu         sync.Mutex
	port       spi.PortCloser
	conn       spi.Conn
	pixels     []ringlight.Color
	fillColor  ringlight.Color
	brightness uint8
	logger     golog.Logger
}

// New opens the SPI port and returns the ring blanked.
func New(ctx context.Context, cfg Config, logger golog.Logger) (ringlight.RingLight, error) {
	port, err := spireg.Open(cfg.SPIBus)
	if err != nil {
		return nil, errors.Wrapf(err, "opening SPI bus %q", cfg.SPIBus)
	}
	conn, err := port.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, multiCloseErr(port, errors.Wrap(err, "connecting to strip"))
	}
	brightness := cfg.Brightness
	if brightness == 0 {
		brightness = defaultBrightness
	}
	if brightness > 31 {
		brightness = 31
	}
	r := &ring{
		port:       port,
		conn:       conn,
		pixels:     make([]ringlight.Color, cfg.NumPixels),
		brightness: brightness,
		logger:     logger,
	}
	if err := r.Off(ctx); err != nil {
		return nil, multiCloseErr(port, err)
	}
	return r, nil
}

func multiCloseErr(port spi.PortCloser, err error) error {
	if closeErr := port.Close(); closeErr != nil {
		return errors.Wrapf(err, "also failed to close port: %v", closeErr)
	}
	return err
}

// show writes the whole strip: start frame, one LED frame per pixel, end frame.
func (r *ring) show() error {
	buf := make([]byte, 0, 4+4*len(r.pixels)+4)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)
	for _, p := range r.pixels {
		buf = append(buf, 0xE0|r.brightness, p.B, p.G, p.R)
	}
	buf = append(buf, 0xFF, 0xFF, 0xFF, 0xFF)
	return r.conn.Tx(buf, nil)
}

func (r *ring) SetColor(ctx context.Context, color ringlight.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.pixels {
		r.pixels[i] = color
	}
	r.fillColor = color
	if err := r.show(); err != nil {
		return errors.Wrap(err, "writing strip")
	}
	r.logger.Debugw("ring light set", "r", color.R, "g", color.G, "b", color.B)
	return nil
}

func (r *ring) SetPixel(ctx context.Context, pixel int, color ringlight.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pixel < 0 || pixel >= len(r.pixels) {
		return errors.Errorf("pixel %d out of range [0, %d)", pixel, len(r.pixels))
	}
	r.pixels[pixel] = color
	r.fillColor = ringlight.Off
	return errors.Wrap(r.show(), "writing strip")
}

func (r *ring) Off(ctx context.Context) error {
	return r.SetColor(ctx, ringlight.Off)
}

func (r *ring) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pixels {
		if p != ringlight.Off {
			return true
		}
	}
	return false
}

func (r *ring) Color() ringlight.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fillColor
}
