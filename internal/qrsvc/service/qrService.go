package service

import (
	"fmt"

	"github.com/avvvet/gm2-qr-services/internal/comm"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/render"
	"github.com/avvvet/gm2-qr-services/internal/token"
)

// QRService turns credentials into a payload and its rendered image.
type QRService struct {
	generator *token.Generator
	renderer  *render.Renderer
}

func NewQRService(generator *token.Generator, renderer *render.Renderer) *QRService {
	return &QRService{generator: generator, renderer: renderer}
}

func (s *QRService) Payload(c models.Credentials) token.Payload {
	return s.generator.Generate(c.CardNumber, c.Constant, c.DeviceId)
}

func (s *QRService) PNG(c models.Credentials) (token.Payload, []byte, error) {
	p := s.Payload(c)
	png, err := s.renderer.PNG(p.String())
	if err != nil {
		return p, nil, fmt.Errorf("render %s: %w", p.Hash, err)
	}
	return p, png, nil
}

// Frame generates a fresh payload and renders it for the browser.
func (s *QRService) Frame(c models.Credentials, seq uint64) (token.Payload, comm.Frame, error) {
	p := s.Payload(c)
	img, err := s.renderer.DataURL(p.String())
	if err != nil {
		return p, comm.Frame{}, fmt.Errorf("render %s: %w", p.Hash, err)
	}
	return p, comm.Frame{
		Payload:   p.String(),
		Image:     img,
		Timestamp: p.Timestamp,
		Seq:       seq,
	}, nil
}
