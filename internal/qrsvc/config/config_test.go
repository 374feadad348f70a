package config

import (
	"image/color"
	"testing"
	"time"

	"github.com/avvvet/gm2-qr-services/internal/qrsvc/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"QR_SERVICE_PORT", "REFRESH_INTERVAL", "COUNTDOWN", "QR_SIZE", "QR_DARK", "QR_LIGHT", "STORE_DRIVER", "RATE_LIMIT"} {
		t.Setenv(k, "")
	}

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 5*time.Second, c.RefreshInterval)
	assert.True(t, c.Countdown)
	assert.Equal(t, 300, c.QRSize)
	assert.Equal(t, color.RGBA{0, 0, 0, 0xff}, c.QRDark)
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, c.QRLight)
	assert.Equal(t, store.DriverSQLite, c.Store.Driver)
	assert.Equal(t, 100, c.RateLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QR_SERVICE_PORT", "9000")
	t.Setenv("REFRESH_INTERVAL", "10s")
	t.Setenv("COUNTDOWN", "false")
	t.Setenv("QR_SIZE", "200")
	t.Setenv("QR_DARK", "#112233")
	t.Setenv("STORE_DRIVER", "memory")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, 10*time.Second, c.RefreshInterval)
	assert.False(t, c.Countdown)
	assert.Equal(t, 200, c.RenderOptions().Size)
	assert.Equal(t, color.RGBA{0x11, 0x22, 0x33, 0xff}, c.QRDark)
	assert.Equal(t, store.DriverMemory, c.Store.Driver)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"REFRESH_INTERVAL": "soon",
		"QR_SIZE":          "-1",
		"QR_LIGHT":         "white",
		"RATE_LIMIT":       "lots",
		"COUNTDOWN":        "maybe",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
