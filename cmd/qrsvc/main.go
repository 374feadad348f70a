package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/acme/autocert"

	config "github.com/avvvet/gm2-qr-services/configs"
	natscli "github.com/avvvet/gm2-qr-services/internal/nats"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/broker"
	svcconfig "github.com/avvvet/gm2-qr-services/internal/qrsvc/config"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/handlers"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/service"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/store"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/ws"
	"github.com/avvvet/gm2-qr-services/internal/render"
	"github.com/avvvet/gm2-qr-services/internal/token"
)

const SERVICE_NAME = "qr"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg, err := svcconfig.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// durable credential storage
	kv, err := store.Open(context.Background(), cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer kv.Close()
	log.Infof("%s store ready", cfg.Store.Driver)

	// NATS is optional; without it refresh events are not published
	b := broker.NewBroker(nil)
	n, err := natscli.Connect(cfg.NatsUrl, SERVICE_NAME+"-"+instanceId)
	switch {
	case errors.Is(err, natscli.ErrNotConfigured):
		log.Info("NATS not configured, refresh events disabled")
	case err != nil:
		log.Errorf("Error: unable to connect to NATS server %v", err)
	default:
		defer n.Conn.Close()
		b = broker.NewBroker(n.Conn)
		log.Printf("NATS connection established successfully %s", n.Url)
	}

	credentialsService := service.NewCredentialsService(kv)
	qrService := service.NewQRService(token.NewGenerator(), render.New(cfg.RenderOptions()))

	s := ws.NewWs(qrService, credentialsService, b, ws.Options{
		Interval:  cfg.RefreshInterval,
		Countdown: cfg.Countdown,
	})
	defer s.Close()

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))
	}

	h := handlers.NewHandler(s, credentialsService, qrService, instanceId)
	h.InitAuth(cfg.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := listen(server, cfg.TLSDomain); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s (refresh every %s)", SERVICE_NAME, server.Addr, cfg.RefreshInterval)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}

// listen serves plain HTTP, or TLS with Let's Encrypt certificates when a
// domain is configured.
func listen(server *http.Server, domain string) error {
	if domain == "" {
		return server.ListenAndServe()
	}

	m := &autocert.Manager{
		Cache:      autocert.DirCache(".autocert-cache"),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
	}

	// HTTP challenge server on :80
	go func() {
		log.Infof("ACME HTTP challenge server on :80")
		if err := http.ListenAndServe(":80", m.HTTPHandler(nil)); err != nil {
			log.Errorf("HTTP challenge server error: %v", err)
		}
	}()

	server.TLSConfig = &tls.Config{GetCertificate: m.GetCertificate}
	return server.ListenAndServeTLS("", "")
}
