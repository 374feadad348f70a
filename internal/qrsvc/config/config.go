package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"time"

	"github.com/avvvet/gm2-qr-services/internal/qrsvc/store"
	"github.com/avvvet/gm2-qr-services/internal/refresh"
	"github.com/avvvet/gm2-qr-services/internal/render"
)

type Config struct {
	Port            string
	RefreshInterval time.Duration
	Countdown       bool
	QRSize          int
	QRDark          color.Color
	QRLight         color.Color
	Store           store.Config
	NatsUrl         string
	RateLimit       int
	JWTSecret       string
	TLSDomain       string
}

func (c Config) RenderOptions() render.Options {
	opts := render.DefaultOptions()
	opts.Size = c.QRSize
	opts.Dark = c.QRDark
	opts.Light = c.QRLight
	return opts
}

// Load reads the service configuration from the environment.
func Load() (Config, error) {
	c := Config{
		Port:            getenv("QR_SERVICE_PORT", "8080"),
		RefreshInterval: refresh.DefaultInterval,
		Countdown:       true,
		QRSize:          render.DefaultSize,
		Store: store.Config{
			Driver:      getenv("STORE_DRIVER", store.DriverSQLite),
			SQLitePath:  getenv("SQLITE_PATH", store.DefaultSQLitePath),
			PostgresURL: os.Getenv("POSTGRES_URL"),
			MongoURI:    os.Getenv("MONGODB_URI"),
		},
		NatsUrl:   os.Getenv("NATS_URL"),
		RateLimit: 100,
		JWTSecret: os.Getenv("JWT_SECRET_KEY"),
		TLSDomain: os.Getenv("TLS_DOMAIN"),
	}

	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return c, fmt.Errorf("invalid REFRESH_INTERVAL %q", v)
		}
		c.RefreshInterval = d
	}

	if v := os.Getenv("COUNTDOWN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("invalid COUNTDOWN %q", v)
		}
		c.Countdown = b
	}

	if v := os.Getenv("QR_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c, fmt.Errorf("invalid QR_SIZE %q", v)
		}
		c.QRSize = n
	}

	dark, err := render.ParseHexColor(getenv("QR_DARK", "#000000"))
	if err != nil {
		return c, fmt.Errorf("QR_DARK: %w", err)
	}
	c.QRDark = dark

	light, err := render.ParseHexColor(getenv("QR_LIGHT", "#FFFFFF"))
	if err != nil {
		return c, fmt.Errorf("QR_LIGHT: %w", err)
	}
	c.QRLight = light

	if v := os.Getenv("RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("invalid RATE_LIMIT value: %w", err)
		}
		c.RateLimit = n
	}

	return c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
