package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
)

// Wire message types between relay clients and the relay server.
const (
	wireSubscribe   = "sub"
	wireUnsubscribe = "unsub"
	wirePublish     = "pub"
	wireMessage     = "msg"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// messageBuffer bounds undelivered messages per client.
	messageBuffer = 64
)

// wire is the JSON frame exchanged with the relay server.
type wire struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Message string `json:"message,omitempty"`
}

// Message is an envelope received on a subscribed topic.
type Message struct {
	Topic   string
	Payload string
}

// Relay moves opaque envelopes between peers by topic.
type Relay interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic, message string) error
	Messages() <-chan Message
	Close() error
}

// ErrRelayClosed is returned by a closed relay.
var ErrRelayClosed = errors.New("pairing relay closed")

// WSRelay is a Relay over a websocket connection to a relay server.
type WSRelay struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	msgs    chan Message
	done    chan struct{}
	once    sync.Once
}

var _ Relay = (*WSRelay)(nil)

// DialRelay connects to the relay server at url, retrying transient
// failures with retryCfg (the default retry config when nil).
func DialRelay(ctx context.Context, url string, retryCfg *nerrors.RetryConfig, logger zerolog.Logger) (*WSRelay, error) {
	var conn *websocket.Conn
	err := nerrors.RetryWithConfig(ctx, func() error {
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nerrors.NewValidationError("", fmt.Sprintf("relay refused connection: %s", resp.Status))
			}
			return nerrors.NewNetworkError("", "failed to dial pairing relay", err)
		}
		conn = c
		return nil
	}, retryCfg)
	if err != nil {
		return nil, err
	}

	r := &WSRelay{
		conn:   conn,
		logger: logger.With().Str("component", "pairing_relay").Logger(),
		msgs:   make(chan Message, messageBuffer),
		done:   make(chan struct{}),
	}
	go r.readLoop()
	go r.pingLoop()
	return r, nil
}

func (r *WSRelay) Subscribe(ctx context.Context, topic string) error {
	return r.write(ctx, wire{Type: wireSubscribe, Topic: topic})
}

func (r *WSRelay) Unsubscribe(ctx context.Context, topic string) error {
	return r.write(ctx, wire{Type: wireUnsubscribe, Topic: topic})
}

func (r *WSRelay) Publish(ctx context.Context, topic, message string) error {
	return r.write(ctx, wire{Type: wirePublish, Topic: topic, Message: message})
}

// Messages delivers envelopes of subscribed topics. It is closed when the
// connection ends.
func (r *WSRelay) Messages() <-chan Message {
	return r.msgs
}

func (r *WSRelay) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		r.writeMu.Lock()
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		r.writeMu.Unlock()
		err = r.conn.Close()
	})
	return err
}

func (r *WSRelay) write(ctx context.Context, w wire) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(deadline)
	if err := r.conn.WriteJSON(w); err != nil {
		return nerrors.NewNetworkError("", "failed to write to pairing relay", err)
	}
	return nil
}

func (r *WSRelay) readLoop() {
	defer close(r.msgs)
	_ = r.conn.SetReadDeadline(time.Now().Add(pongWait))
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var w wire
		if err := r.conn.ReadJSON(&w); err != nil {
			select {
			case <-r.done:
			default:
				r.logger.Warn().Err(err).Msg("pairing relay connection lost")
			}
			return
		}
		if w.Type != wireMessage {
			continue
		}
		select {
		case r.msgs <- Message{Topic: w.Topic, Payload: w.Message}:
		case <-r.done:
			return
		}
	}
}

func (r *WSRelay) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.writeMu.Lock()
			err := r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			r.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
