package pairing

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// mailboxSize bounds the messages kept for a topic nobody listens on yet.
const mailboxSize = 16

// RelayServer fans published envelopes out to the other subscribers of a
// topic. Messages published to a topic without other subscribers are kept
// and delivered to the next subscriber, so a wallet that scans a pairing URI
// late still sees the proposal.
type RelayServer struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	topics    map[string]map[string]*relayConn
	mailboxes map[string][]string
}

type relayConn struct {
	id   string
	ws   *websocket.Conn
	send chan wire
	done chan struct{}
	once sync.Once
}

func (c *relayConn) close() {
	c.once.Do(func() { close(c.done) })
}

func NewRelayServer(logger zerolog.Logger) *RelayServer {
	return &RelayServer{
		logger: logger.With().Str("component", "relay_server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		topics:    make(map[string]map[string]*relayConn),
		mailboxes: make(map[string][]string),
	}
}

// ServeHTTP upgrades the request and serves one relay client.
func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &relayConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan wire, messageBuffer),
		done: make(chan struct{}),
	}
	s.logger.Debug().Str("conn", c.id).Str("remote", r.RemoteAddr).Msg("relay client connected")

	go s.writePump(c)
	s.readPump(c)
}

func (s *RelayServer) readPump(c *relayConn) {
	defer func() {
		s.drop(c)
		c.close()
		_ = c.ws.Close()
		s.logger.Debug().Str("conn", c.id).Msg("relay client disconnected")
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var w wire
		if err := c.ws.ReadJSON(&w); err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if w.Topic == "" {
			continue
		}
		switch w.Type {
		case wireSubscribe:
			s.subscribe(c, w.Topic)
		case wireUnsubscribe:
			s.unsubscribe(c, w.Topic)
		case wirePublish:
			s.publish(c, w.Topic, w.Message)
		}
	}
}

func (s *RelayServer) writePump(c *relayConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case w := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(w); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *RelayServer) subscribe(c *relayConn, topic string) {
	s.mu.Lock()
	subs, ok := s.topics[topic]
	if !ok {
		subs = make(map[string]*relayConn)
		s.topics[topic] = subs
	}
	subs[c.id] = c
	pending := s.mailboxes[topic]
	delete(s.mailboxes, topic)
	s.mu.Unlock()

	for _, msg := range pending {
		s.deliver(c, topic, msg)
	}
}

func (s *RelayServer) unsubscribe(c *relayConn, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs, ok := s.topics[topic]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(s.topics, topic)
		}
	}
}

func (s *RelayServer) publish(from *relayConn, topic, msg string) {
	s.mu.Lock()
	var targets []*relayConn
	for id, c := range s.topics[topic] {
		if id != from.id {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		box := append(s.mailboxes[topic], msg)
		if len(box) > mailboxSize {
			box = box[len(box)-mailboxSize:]
		}
		s.mailboxes[topic] = box
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.deliver(c, topic, msg)
	}
}

func (s *RelayServer) deliver(c *relayConn, topic, msg string) {
	select {
	case c.send <- wire{Type: wireMessage, Topic: topic, Message: msg}:
	case <-c.done:
	default:
		s.logger.Warn().Str("conn", c.id).Str("topic", topic).Msg("relay client too slow, dropping message")
	}
}

func (s *RelayServer) drop(c *relayConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, subs := range s.topics {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(s.topics, topic)
		}
	}
}
