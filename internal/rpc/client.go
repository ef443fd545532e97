package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/metrics"
)

var (
	// ErrUndeliverable means no response arrived before the deadline. The
	// request may still have been applied by the server.
	ErrUndeliverable = errors.New("rpc response not received")
	ErrClosed        = errors.New("rpc client closed")
)

// Client sends requests over a connected datagram socket and matches
// responses to callers by correlation id. One goroutine owns reads from the
// socket; callers only write and wait on their own completion channel.
type Client struct {
	conn    net.Conn
	timeout time.Duration
	logger  zerolog.Logger

	counter atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan string // each buffered for exactly one response

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects a UDP socket to the ledger service at raddr, bound to laddr
// when it is not empty.
func Dial(ctx context.Context, laddr, raddr string) (net.Conn, error) {
	var d net.Dialer
	if laddr != "" {
		local, err := net.ResolveUDPAddr("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("resolve client addr: %w", err)
		}
		d.LocalAddr = local
	}
	conn, err := d.DialContext(ctx, "udp", raddr)
	if err != nil {
		return nil, fmt.Errorf("dial ledger service: %w", err)
	}
	return conn, nil
}

// NewClient starts the receive loop on conn. A timeout of zero waits until
// the caller's context is done.
func NewClient(conn net.Conn, timeout time.Duration, logger zerolog.Logger) *Client {
	c := &Client{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
		pending: make(map[uint64]chan string),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

// Call sends one request and waits for its response, the context or the
// client timeout, whichever comes first. There is no retry.
func (c *Client) Call(ctx context.Context, cmd Command, payload string) (string, error) {
	id := c.nextID()
	completion := make(chan string, 1)
	if err := c.register(id, completion); err != nil {
		return "", err
	}
	defer c.unregister(id)

	buf, err := EncodeRequest(Request{Command: cmd, CorrelationID: id, Payload: payload})
	if err != nil {
		metrics.RecordRPCCall(string(cmd), "error")
		return "", err
	}
	if _, err := c.conn.Write(buf); err != nil {
		metrics.RecordRPCCall(string(cmd), "error")
		return "", fmt.Errorf("send %s: %w", cmd, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case resp := <-completion:
		metrics.RecordRPCCall(string(cmd), "ok")
		return resp, nil
	case <-ctx.Done():
		metrics.RecordRPCCall(string(cmd), "undeliverable")
		return "", fmt.Errorf("%w: %s correlation id %d: %v", ErrUndeliverable, cmd, id, ctx.Err())
	case <-c.closed:
		return "", ErrClosed
	}
}

// nextID cycles through 1..maxCorrelationID so ids fit their field.
func (c *Client) nextID() uint64 {
	return (c.counter.Add(1)-1)%maxCorrelationID + 1
}

func (c *Client) register(id uint64, completion chan string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.pending[id] = completion
	metrics.SetRPCPending(len(c.pending))
	return nil
}

func (c *Client) unregister(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	metrics.SetRPCPending(len(c.pending))
}

// take removes and returns the completion for id. Removing it on first
// delivery is what makes a duplicate response a no-op.
func (c *Client) take(id uint64) (chan string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	completion, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		metrics.SetRPCPending(len(c.pending))
	}
	return completion, ok
}

func (c *Client) receiveLoop() {
	defer close(c.done)

	buf := make([]byte, DatagramSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warn().Err(err).Msg("rpc receive failed")
			continue
		}

		resp, err := DecodeResponse(buf[:n])
		if err != nil {
			metrics.RecordDroppedResponse()
			c.logger.Warn().Err(err).Msg("dropping undecodable response")
			continue
		}
		completion, ok := c.take(resp.CorrelationID)
		if !ok {
			metrics.RecordDroppedResponse()
			c.logger.Debug().Uint64("correlation_id", resp.CorrelationID).Msg("dropping response with no pending request")
			continue
		}
		completion <- resp.Payload
	}
}

// Close stops the receive loop and fails every waiting call with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.closed)
		c.mu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}
