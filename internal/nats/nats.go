package nats

import (
	"errors"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNotConfigured is returned when no NATS url is available.
var ErrNotConfigured = errors.New("NATS_URL is not set")

type Nats struct {
	Url   string
	Token string
	Conn  *nats.Conn
}

// Connect dials url, falling back to NATS_URL. The connection is optional for
// the QR service, so an empty url is reported as ErrNotConfigured.
func Connect(url, name string) (*Nats, error) {
	n := &Nats{
		Url:   url,
		Token: os.Getenv("NATS_TOKEN"),
	}

	if n.Url == "" {
		n.Url = os.Getenv("NATS_URL")
	}
	if n.Url == "" {
		return nil, ErrNotConfigured
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
	}

	// if token provided
	if n.Token != "" {
		opts = append(opts, nats.Token(n.Token))
	}

	conn, err := nats.Connect(n.Url, opts...)
	if err != nil {
		return nil, err
	}

	n.Conn = conn

	return n, nil
}
