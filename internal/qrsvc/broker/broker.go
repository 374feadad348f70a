package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avvvet/gm2-qr-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const Topic = "qr.service"

var ErrUnexpectedType = errors.New("unexpected message type")

// Publisher is the part of *nats.Conn the broker uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Broker fans refresh events out to NATS. A nil Broker or one without a
// connection drops events silently.
type Broker struct {
	Conn Publisher
}

func NewBroker(conn Publisher) *Broker {
	return &Broker{Conn: conn}
}

func (b *Broker) Enabled() bool {
	return b != nil && b.Conn != nil
}

func (b *Broker) PublishRefresh(ev comm.RefreshEvent) {
	if !b.Enabled() {
		return
	}

	msg, err := comm.NewMessage(comm.TypeRefresh, ev.SocketId, ev)
	if err != nil {
		log.Errorf("error [PublishRefresh] marshaling event: %v", err)
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("error [PublishRefresh] marshaling WSMessage: %v", err)
		return
	}

	if err := b.Conn.Publish(Topic, payload); err != nil {
		log.Errorf("error publishing %s for socket %s: %v", Topic, ev.SocketId, err)
	}
}

// Subscribe decodes refresh events from the topic and hands them to fn.
func Subscribe(conn *nats.Conn, fn func(comm.RefreshEvent)) (*nats.Subscription, error) {
	return conn.Subscribe(Topic, func(m *nats.Msg) {
		ev, err := DecodeRefresh(m.Data)
		if err != nil {
			log.Errorf("invalid refresh message: %v", err)
			return
		}
		fn(ev)
	})
}

func DecodeRefresh(data []byte) (comm.RefreshEvent, error) {
	var msg comm.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return comm.RefreshEvent{}, err
	}

	var ev comm.RefreshEvent
	if msg.Type != comm.TypeRefresh {
		return ev, fmt.Errorf("%w: %s", ErrUnexpectedType, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return comm.RefreshEvent{}, err
	}
	return ev, nil
}
