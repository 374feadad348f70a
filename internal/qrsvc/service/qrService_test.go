package service

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/render"
	"github.com/avvvet/gm2-qr-services/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedQRService() *QRService {
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	return NewQRService(token.WithClock(clock), render.New(render.DefaultOptions()))
}

var sampleCreds = models.Credentials{CardNumber: "1234", DeviceId: "dev1", Constant: "ABCD"}

func TestQRServicePayload(t *testing.T) {
	p := fixedQRService().Payload(sampleCreds)
	assert.Equal(t, "GM2:1234:ABCD:1700000000:BB0CC97E", p.String())
}

func TestQRServiceFrame(t *testing.T) {
	p, f, err := fixedQRService().Frame(sampleCreds, 7)
	require.NoError(t, err)

	assert.Equal(t, p.String(), f.Payload)
	assert.Equal(t, int64(1700000000), f.Timestamp)
	assert.Equal(t, uint64(7), f.Seq)
	assert.True(t, strings.HasPrefix(f.Image, "data:image/png;base64,"))
}

func TestQRServicePNG(t *testing.T) {
	_, data, err := fixedQRService().PNG(sampleCreds)
	require.NoError(t, err)

	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}
