// Package pass renders the scannable entry credential for a ticket id.
package pass

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

var ErrEmptyTicket = errors.New("pass: ticket id is empty")

type Options struct {
	Size       int
	Border     bool
	Foreground color.Color
	Background color.Color
	Level      qrcode.RecoveryLevel
}

func DefaultOptions() Options {
	return Options{
		Size:       300,
		Border:     true,
		Foreground: color.Black,
		Background: color.White,
		Level:      qrcode.Medium,
	}
}

// Materializer encodes ticket ids as PNG QR data URLs. Output depends only on
// the ticket id and the options, so a lost pass can always be rebuilt.
type Materializer struct {
	opts Options
}

func New(opts Options) *Materializer {
	def := DefaultOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.Foreground == nil {
		opts.Foreground = def.Foreground
	}
	if opts.Background == nil {
		opts.Background = def.Background
	}
	return &Materializer{opts: opts}
}

func (m *Materializer) Encode(ticketID string) (string, error) {
	png, err := m.PNG(ticketID)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

func (m *Materializer) PNG(ticketID string) ([]byte, error) {
	if ticketID == "" {
		return nil, ErrEmptyTicket
	}
	q, err := qrcode.New(ticketID, m.opts.Level)
	if err != nil {
		return nil, fmt.Errorf("pass: encode %s: %w", ticketID, err)
	}
	q.ForegroundColor = m.opts.Foreground
	q.BackgroundColor = m.opts.Background
	q.DisableBorder = !m.opts.Border

	png, err := q.PNG(m.opts.Size)
	if err != nil {
		return nil, fmt.Errorf("pass: render %s: %w", ticketID, err)
	}
	return png, nil
}

// ParseHexColor reads "#rrggbb".
func ParseHexColor(s string) (color.Color, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return nil, fmt.Errorf("pass: bad colour %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}
