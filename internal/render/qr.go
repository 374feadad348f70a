package render

import (
	"encoding/base64"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 300

type Options struct {
	Size  int
	Dark  color.Color
	Light color.Color
	Level qrcode.RecoveryLevel
}

func DefaultOptions() Options {
	return Options{
		Size:  DefaultSize,
		Dark:  color.Black,
		Light: color.White,
		Level: qrcode.Medium,
	}
}

// Renderer rasterizes payloads with a fixed size and two-tone colour scheme.
type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.Dark == nil {
		opts.Dark = def.Dark
	}
	if opts.Light == nil {
		opts.Light = def.Light
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) Size() int {
	return r.opts.Size
}

func (r *Renderer) code(payload string) (*qrcode.QRCode, error) {
	q, err := qrcode.New(payload, r.opts.Level)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	q.ForegroundColor = r.opts.Dark
	q.BackgroundColor = r.opts.Light
	return q, nil
}

func (r *Renderer) PNG(payload string) ([]byte, error) {
	q, err := r.code(payload)
	if err != nil {
		return nil, err
	}
	png, err := q.PNG(r.opts.Size)
	if err != nil {
		return nil, fmt.Errorf("render png: %w", err)
	}
	return png, nil
}

// DataURL returns the PNG as a data: URL ready for an <img> src.
func (r *Renderer) DataURL(payload string) (string, error) {
	png, err := r.PNG(payload)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Terminal renders the code with half-block characters.
func (r *Renderer) Terminal(payload string) (string, error) {
	q, err := r.code(payload)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

// ParseHexColor accepts "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}
