package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
)

// requestHandler serves a request received on a topic. Returning a nil
// result and nil error sends no response.
type requestHandler func(ctx context.Context, topic string, req *Request) (any, *RPCError)

// peer routes encrypted JSON-RPC traffic on a relay. Each subscribed topic
// has its symmetric key and, optionally, a handler for incoming requests.
type peer struct {
	relay  Relay
	logger zerolog.Logger

	mu       sync.Mutex
	keys     map[string][]byte
	handlers map[string]requestHandler
	pending  map[int64]chan *Response

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newPeer(relay Relay, logger zerolog.Logger) *peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &peer{
		relay:    relay,
		logger:   logger,
		keys:     make(map[string][]byte),
		handlers: make(map[string]requestHandler),
		pending:  make(map[int64]chan *Response),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *peer) subscribe(ctx context.Context, topic string, key []byte, h requestHandler) error {
	p.mu.Lock()
	p.keys[topic] = key
	if h != nil {
		p.handlers[topic] = h
	}
	p.mu.Unlock()
	return p.relay.Subscribe(ctx, topic)
}

func (p *peer) unsubscribe(ctx context.Context, topic string) {
	p.mu.Lock()
	delete(p.keys, topic)
	delete(p.handlers, topic)
	p.mu.Unlock()
	if err := p.relay.Unsubscribe(ctx, topic); err != nil {
		p.logger.Debug().Err(err).Str("topic", topic).Msg("failed to unsubscribe")
	}
}

// request publishes method on topic and waits for the peer's response.
func (p *peer) request(ctx context.Context, topic, method string, params any) (json.RawMessage, error) {
	id, err := p.send(ctx, topic, method, params, true)
	if err != nil {
		return nil, err
	}
	ch := p.waiter(id)
	defer p.forget(id)

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, nerrors.NewTimeoutError("", fmt.Sprintf("no answer to %s from the paired wallet", method))
	case <-p.done:
		return nil, ErrRelayClosed
	}
}

// notify publishes method on topic without waiting for an answer.
func (p *peer) notify(ctx context.Context, topic, method string, params any) error {
	_, err := p.send(ctx, topic, method, params, false)
	return err
}

func (p *peer) send(ctx context.Context, topic, method string, params any, await bool) (int64, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}
	req := Request{ID: nextID(), JSONRPC: "2.0", Method: method, Params: raw}
	if await {
		// register before publishing so a fast answer is not lost
		p.waiter(req.ID)
	}
	if err := p.publish(ctx, topic, req); err != nil {
		p.forget(req.ID)
		return 0, err
	}
	return req.ID, nil
}

func (p *peer) respond(ctx context.Context, topic string, id int64, result any, rpcErr *RPCError) error {
	resp := Response{ID: id, JSONRPC: "2.0", Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resp.Result = raw
	}
	return p.publish(ctx, topic, resp)
}

func (p *peer) publish(ctx context.Context, topic string, v any) error {
	p.mu.Lock()
	key, ok := p.keys[topic]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no key for topic %s", topic)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := Seal(key, payload)
	if err != nil {
		return err
	}
	return p.relay.Publish(ctx, topic, sealed)
}

func (p *peer) waiter(id int64) chan *Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.pending[id]
	if !ok {
		ch = make(chan *Response, 1)
		p.pending[id] = ch
	}
	return ch
}

func (p *peer) forget(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
}

func (p *peer) loop() {
	defer close(p.done)
	for msg := range p.relay.Messages() {
		p.dispatch(msg)
	}
}

func (p *peer) dispatch(msg Message) {
	p.mu.Lock()
	key, ok := p.keys[msg.Topic]
	handler := p.handlers[msg.Topic]
	p.mu.Unlock()
	if !ok {
		return
	}

	payload, err := Open(key, msg.Payload)
	if err != nil {
		p.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("dropping undecryptable message")
		return
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		p.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("dropping malformed message")
		return
	}

	if !env.isRequest() {
		p.mu.Lock()
		ch, ok := p.pending[env.ID]
		p.mu.Unlock()
		if ok {
			select {
			case ch <- &Response{ID: env.ID, JSONRPC: "2.0", Result: env.Result, Error: env.Error}:
			default:
			}
		}
		return
	}

	if handler == nil {
		return
	}
	req := &Request{ID: env.ID, JSONRPC: "2.0", Method: env.Method, Params: env.Params}
	// handlers may block on the user or the chain, so they must not stall
	// delivery of responses
	go func() {
		result, rpcErr := handler(p.ctx, msg.Topic, req)
		if result == nil && rpcErr == nil {
			return
		}
		if err := p.respond(p.ctx, msg.Topic, req.ID, result, rpcErr); err != nil {
			p.logger.Warn().Err(err).Str("method", req.Method).Msg("failed to answer request")
		}
	}()
}

func (p *peer) close() error {
	p.cancel()
	return p.relay.Close()
}
