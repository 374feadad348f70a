package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gm2-qr-services/configs"
	"github.com/avvvet/gm2-qr-services/internal/comm"
	natscli "github.com/avvvet/gm2-qr-services/internal/nats"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/broker"
	svcconfig "github.com/avvvet/gm2-qr-services/internal/qrsvc/config"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/service"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/store"
	"github.com/avvvet/gm2-qr-services/internal/refresh"
	"github.com/avvvet/gm2-qr-services/internal/render"
	"github.com/avvvet/gm2-qr-services/internal/token"
)

const usage = `usage: qrctl <command> [flags]

commands:
  generate   print one payload
  watch      refresh the QR code in the terminal (Enter skips, Ctrl-C stops)
  verify     check a payload against a device id
  tail       log refresh events published on NATS
`

func main() {
	log.SetOutput(os.Stderr)
	config.LoadEnv("qrctl")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:], os.Stdout)
	case "watch":
		err = runWatch(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "verify":
		err = runVerify(os.Args[2:], os.Stdout)
	case "tail":
		err = runTail(ctx, os.Args[2:], os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}

func credentialFlags(fs *flag.FlagSet) *models.Credentials {
	c := &models.Credentials{}
	fs.StringVar(&c.CardNumber, "card", os.Getenv("CARD_NUMBER"), "card number")
	fs.StringVar(&c.DeviceId, "device", os.Getenv("DEVICE_ID"), "device id")
	fs.StringVar(&c.Constant, "constant", os.Getenv("CONSTANT"), "shared constant")
	return c
}

// resolveCredentials fills missing flag values from the configured store.
func resolveCredentials(ctx context.Context, c models.Credentials) (models.Credentials, error) {
	c = c.Trim()
	if c.Validate() == nil {
		return c, nil
	}

	cfg, err := svcconfig.Load()
	if err != nil {
		return c, err
	}
	kv, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return c, fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	c, err = service.NewCredentialsService(kv).Load(ctx, c)
	if err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func runGenerate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	creds := credentialFlags(fs)
	at := fs.Int64("at", 0, "unix timestamp to use instead of now")
	fs.Parse(args)

	c, err := resolveCredentials(context.Background(), *creds)
	if err != nil {
		return err
	}

	if *at > 0 {
		fmt.Fprintln(out, token.Format(c.CardNumber, c.Constant, *at, c.DeviceId))
		return nil
	}
	fmt.Fprintln(out, token.NewGenerator().Generate(c.CardNumber, c.Constant, c.DeviceId))
	return nil
}

func runVerify(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	payload := fs.String("payload", "", "payload to check")
	device := fs.String("device", os.Getenv("DEVICE_ID"), "device id")
	fs.Parse(args)

	p, err := token.Parse(strings.TrimSpace(*payload))
	if err != nil {
		return err
	}
	if !p.Verify(*device) {
		return fmt.Errorf("hash %s does not match device %q", p.Hash, *device)
	}

	age := time.Since(time.Unix(p.Timestamp, 0)).Round(time.Second)
	fmt.Fprintf(out, "ok card=%s issued=%s ago\n", p.CardNumber, age)
	return nil
}

// runWatch redraws the code until ctx ends. Every line read from in skips to
// the next payload.
func runWatch(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	creds := credentialFlags(fs)
	interval := fs.Duration("interval", refresh.DefaultInterval, "regeneration interval")
	fs.Parse(args)

	c, err := resolveCredentials(ctx, *creds)
	if err != nil {
		return err
	}

	r := render.New(render.DefaultOptions())
	gen := token.NewGenerator()

	var mu sync.Mutex
	var last string

	d := refresh.NewDriver(func(ctx context.Context, seq uint64) error {
		p := gen.Generate(c.CardNumber, c.Constant, c.DeviceId)
		qr, err := r.Terminal(p.String())
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		last = p.String()
		// clear screen and home the cursor
		fmt.Fprint(out, "\033[H\033[2J")
		fmt.Fprint(out, qr)
		fmt.Fprintln(out, last)
		return nil
	}, refresh.Options{
		Interval: *interval,
		OnCountdown: func(remaining int) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "\rRefreshing in %ds…  ", remaining)
		},
	})

	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			d.Skip()
		}
	}()

	<-ctx.Done()
	d.Stop()

	mu.Lock()
	fmt.Fprintf(out, "\nstopped, last payload %s\n", last)
	mu.Unlock()
	return nil
}

func runTail(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	url := fs.String("nats", os.Getenv("NATS_URL"), "nats url")
	fs.Parse(args)

	n, err := natscli.Connect(*url, "qrctl-tail")
	if errors.Is(err, natscli.ErrNotConfigured) {
		return errors.New("set -nats or NATS_URL")
	}
	if err != nil {
		return fmt.Errorf("unable to connect to NATS: %w", err)
	}
	defer n.Conn.Close()

	sub, err := broker.Subscribe(n.Conn, func(ev comm.RefreshEvent) {
		fmt.Fprintln(out, formatRefresh(ev))
	})
	if err != nil {
		return fmt.Errorf("subscribe error: %w", err)
	}
	defer sub.Unsubscribe()

	log.Infof("tailing %s on %s", broker.Topic, n.Url)

	<-ctx.Done()
	return nil
}

func formatRefresh(ev comm.RefreshEvent) string {
	return fmt.Sprintf("%s socket=%s card=%s seq=%d suffix=%s",
		time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339), ev.SocketId, ev.CardNumber, ev.Seq, ev.Suffix)
}
