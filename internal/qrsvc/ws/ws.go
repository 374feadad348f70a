package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/gm2-qr-services/internal/comm"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/broker"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/service"
	"github.com/avvvet/gm2-qr-services/internal/refresh"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

type Options struct {
	Interval  time.Duration
	Countdown bool

	// SkipLimit and SkipBurst bound how often a socket may force a refresh.
	SkipLimit rate.Limit
	SkipBurst int

	NewTicker func(time.Duration) refresh.Ticker
}

type session struct {
	id      string
	conn    *websocket.Conn
	wmu     sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	mu     sync.Mutex
	driver *refresh.Driver
}

func (s *session) write(msg *comm.WSMessage) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *session) send(t string, data interface{}) error {
	msg, err := comm.NewMessage(t, s.id, data)
	if err != nil {
		return err
	}
	return s.write(msg)
}

// swapDriver installs d and returns the previous driver, if any.
func (s *session) swapDriver(d *refresh.Driver) *refresh.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.driver
	s.driver = d
	return prev
}

func (s *session) currentDriver() *refresh.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver
}

// Ws keeps one display session, and at most one refresh driver, per socket.
type Ws struct {
	connMap sync.Map // socketId -> *session
	Broker  *broker.Broker

	qr          *service.QRService
	credentials *service.CredentialsService
	opts        Options
}

func NewWs(qr *service.QRService, credentials *service.CredentialsService, b *broker.Broker, opts Options) *Ws {
	if opts.Interval <= 0 {
		opts.Interval = refresh.DefaultInterval
	}
	if opts.SkipLimit == 0 {
		opts.SkipLimit = rate.Every(time.Second)
	}
	if opts.SkipBurst == 0 {
		opts.SkipBurst = 3
	}
	return &Ws{
		Broker:      b,
		qr:          qr,
		credentials: credentials,
		opts:        opts,
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	s.connMap.Store(socketId, &session{
		id:      socketId,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(s.opts.SkipLimit, s.opts.SkipBurst),
	})
}

func (s *Ws) getSession(socketId string) (*session, bool) {
	v, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

func (s *Ws) SessionCount() int {
	count := 0
	s.connMap.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// RunningCount returns how many sockets currently have an active driver.
func (s *Ws) RunningCount() int {
	count := 0
	s.connMap.Range(func(key, value any) bool {
		if d := value.(*session).currentDriver(); d != nil && d.State() == refresh.Running {
			count++
		}
		return true
	})
	return count
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	sess, ok := s.getSession(socketId)
	if !ok {
		log.Warnf("message for unknown socket %s", socketId)
		return
	}

	switch message.Type {
	case comm.TypeStart:
		s.handleStart(sess, message)
	case comm.TypeSkip:
		s.handleSkip(sess)
	case comm.TypeStop:
		s.handleStop(sess)
	default:
		log.Warnf("unknown event received: %s", message.Type)
		s.sendError(sess, comm.ErrCodeInvalidMessage, "unknown message type "+message.Type)
	}
}

func (s *Ws) handleStart(sess *session, msg *comm.WSMessage) {
	var creds models.Credentials
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &creds); err != nil {
			log.Errorf("Error: invalid_start_data Malformed start payload %s", err)
			s.sendError(sess, comm.ErrCodeInvalidMessage, "invalid start payload")
			return
		}
	}

	creds, err := s.credentials.Save(sess.ctx, creds)
	if err != nil {
		if errors.Is(err, models.ErrMissingFields) {
			s.sendError(sess, comm.ErrCodeMissingFields, err.Error())
			return
		}
		log.Errorf("Error [CredentialsService.Save] %s", err)
		s.sendError(sess, comm.ErrCodeStorage, "failed to save credentials")
		return
	}

	d := refresh.NewDriver(s.cycle(sess, creds), s.driverOptions(sess))
	if prev := sess.swapDriver(d); prev != nil {
		prev.Stop()
	}

	if err := d.Start(sess.ctx); err != nil {
		log.Errorf("unable to start refresh for socket %s: %v", sess.id, err)
		s.sendError(sess, comm.ErrCodeRefresh, "unable to start refresh")
		return
	}

	log.Infof("refresh started for socket %s card %s", sess.id, creds.CardNumber)
}

func (s *Ws) handleSkip(sess *session) {
	d := sess.currentDriver()
	if d == nil {
		return
	}
	if !sess.limiter.Allow() {
		s.sendError(sess, comm.ErrCodeRateLimited, "too many skip requests")
		return
	}
	if !d.Skip() {
		log.Debugf("skip ignored for idle socket %s", sess.id)
	}
}

func (s *Ws) handleStop(sess *session) {
	if d := sess.swapDriver(nil); d != nil {
		d.Stop()
	}
	if err := sess.send(comm.TypeStopped, nil); err != nil {
		log.Errorf("Failed to send stopped to socket %s: %v", sess.id, err)
	}
}

func (s *Ws) cycle(sess *session, creds models.Credentials) refresh.CycleFunc {
	return func(ctx context.Context, seq uint64) error {
		p, frame, err := s.qr.Frame(creds, seq)
		if err != nil {
			return err
		}

		if err := sess.send(comm.TypeFrame, frame); err != nil {
			return fmt.Errorf("write frame to socket %s: %w", sess.id, err)
		}

		s.Broker.PublishRefresh(comm.RefreshEvent{
			SocketId:   sess.id,
			CardNumber: creds.CardNumber,
			Timestamp:  p.Timestamp,
			Suffix:     p.Hash,
			Seq:        seq,
		})
		return nil
	}
}

func (s *Ws) driverOptions(sess *session) refresh.Options {
	opts := refresh.Options{
		Interval:  s.opts.Interval,
		NewTicker: s.opts.NewTicker,
		OnError: func(err error) {
			log.Errorf("refresh cycle failed for socket %s: %v", sess.id, err)
			s.sendError(sess, comm.ErrCodeRefresh, "refresh failed")
		},
	}
	if s.opts.Countdown {
		opts.OnCountdown = func(remaining int) {
			if err := sess.send(comm.TypeCountdown, comm.Countdown{Remaining: remaining}); err != nil {
				log.Debugf("countdown to socket %s dropped: %v", sess.id, err)
			}
		}
	}
	return opts
}

// SendError reports errMsg to the client behind socketId.
func (s *Ws) SendError(socketId, code, errMsg string) {
	if sess, ok := s.getSession(socketId); ok {
		s.sendError(sess, code, errMsg)
	}
}

func (s *Ws) sendError(sess *session, code, errMsg string) {
	if err := sess.send(comm.TypeError, comm.ErrorData{Code: code, Error: errMsg}); err != nil {
		log.Errorf("Failed to send error message to client: %v", err)
	}
}

// HandleDisconnect stops the socket's driver so no timer outlives the connection.
func (s *Ws) HandleDisconnect(socketId string) {
	v, ok := s.connMap.LoadAndDelete(socketId)
	if !ok {
		return
	}
	sess := v.(*session)
	sess.cancel()
	if d := sess.swapDriver(nil); d != nil {
		d.Stop()
	}
	log.Infof("socket %s disconnected", socketId)
}

// Close stops every session.
func (s *Ws) Close() {
	s.connMap.Range(func(key, value any) bool {
		s.HandleDisconnect(key.(string))
		return true
	})
}
