package writers

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/logbroker/logbroker/pkg/types"
	"github.com/logbroker/logbroker/pkg/wire"
)

const netClientChanCap = 10000

type netClientMsg struct {
	level uint8
	data  []byte
	sync  chan struct{}
}

// NetClient streams formatted records to a remote NetServer over TCP,
// reconnecting with exponential backoff on any connection failure. In
// AES mode each connection gets a fresh Sealer whose nonce counter
// starts at zero, matched by a fresh Opener on the server side that
// starts at zero too, exactly as the source resets its NonceGenerator
// per connection rather than transmitting the nonce.
type NetClient struct {
	cfg    ClientConfig
	report Reporter

	mu     sync.Mutex
	conn   net.Conn
	sealer *wire.Sealer

	keyMu sync.RWMutex
	key   []byte // current AuthKey/AES key; overrides cfg.Encryption.Key after SetKey

	ingest chan netClientMsg
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	closeMu sync.RWMutex
	closed  bool
}

// NewNetClient starts the client's connect-and-send worker goroutine.
// Construction never blocks on the remote being reachable; Send/Sync
// queue onto the bounded ingest channel regardless of connection
// state, and the worker retries the dial with backoff in the
// background until a connection succeeds. Send/Sync only fail with
// ErrClosed once Close has been called.
func NewNetClient(cfg ClientConfig, report Reporter) *NetClient {
	if report == nil {
		report = NopReporter
	}
	c := &NetClient{
		cfg:    cfg,
		key:    cfg.Encryption.Key,
		report: report,
		ingest: make(chan netClientMsg, netClientChanCap),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// SetKey atomically replaces the key used for the next (re)connect's
// handshake or AES seal. It does not affect an already-established
// connection; the new key takes effect on the next reconnect.
func (c *NetClient) SetKey(key []byte) error {
	c.keyMu.Lock()
	c.key = key
	c.keyMu.Unlock()
	return nil
}

func (c *NetClient) currentKey() []byte {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.key
}

func (c *NetClient) Kind() types.WriterKind { return types.KindClient }

func (c *NetClient) run() {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		conn, sealer, err := c.connect()
		if err != nil {
			// connect() only returns non-nil error when stop fired
			// while backing off; nothing left to serve.
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.sealer = sealer
		c.mu.Unlock()

		stopped := c.serve(conn, sealer)

		c.mu.Lock()
		c.conn = nil
		c.sealer = nil
		c.mu.Unlock()
		conn.Close()

		if stopped {
			return
		}
	}
}

// connect dials and, for AuthKey mode, performs the handshake,
// retrying with exponential backoff until it succeeds or the stop
// channel is closed (shutdown).
func (c *NetClient) connect() (net.Conn, *wire.Sealer, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = 30 * time.Second

	for {
		conn, sealer, err := c.dialOnce()
		if err == nil {
			return conn, sealer, nil
		}
		c.report("connect", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port), err)

		select {
		case <-time.After(bo.NextBackOff()):
		case <-c.stop:
			return nil, nil, fmt.Errorf("client closed")
		}
	}
}

func (c *NetClient) dialOnce() (net.Conn, *wire.Sealer, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, nil, err
	}

	var sealer *wire.Sealer
	switch c.cfg.Encryption.Kind {
	case EncryptionAES:
		sealer, err = wire.NewSealer(c.currentKey())
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
	case EncryptionAuthKey:
		frame, err := wire.EncodeFrame(wire.HandshakeLevel, c.currentKey())
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if _, err := conn.Write(frame); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("handshake: %w", err)
		}
	}
	return conn, sealer, nil
}

// serve drains ingest onto conn until the connection fails or stop
// fires. It reports whether the caller should stop entirely (true) as
// opposed to reconnecting (false).
func (c *NetClient) serve(conn net.Conn, sealer *wire.Sealer) bool {
	for {
		select {
		case <-c.stop:
			return true
		case msg := <-c.ingest:
			if msg.sync != nil {
				close(msg.sync)
				continue
			}
			payload := msg.data
			if sealer != nil {
				payload = sealer.Seal(payload)
			}
			frame, err := wire.EncodeFrame(msg.level, payload)
			if err != nil {
				c.report("encode", conn.RemoteAddr().String(), err)
				continue
			}
			if _, err := conn.Write(frame); err != nil {
				c.report("write", conn.RemoteAddr().String(), err)
				return false // drop back to run() to reconnect
			}
		}
	}
}

func (c *NetClient) Send(formatted []byte, rec types.Record) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	cp := make([]byte, len(formatted))
	copy(cp, formatted)
	select {
	case c.ingest <- netClientMsg{level: rec.Level, data: cp}:
		return nil
	default:
		return ErrFull
	}
}

func (c *NetClient) Sync(timeout time.Duration) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	ack := make(chan struct{})
	select {
	case c.ingest <- netClientMsg{sync: ack}:
	case <-time.After(timeout):
		return fmt.Errorf("netclient sync: %w", ErrFull)
	}
	select {
	case <-ack:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("netclient sync: timed out")
	}
}

func (c *NetClient) Rotate(string) error { return nil }

// Close stops the connect-and-send worker and waits for it to exit.
// The close lock excludes Send/Sync so neither can enqueue onto
// ingest once closed is set, even though ingest itself is never
// closed (only the separate stop channel is, matching the
// reconnect loop's own shutdown signal).
func (c *NetClient) Close() error {
	c.closeMu.Lock()
	c.once.Do(func() {
		c.closed = true
		close(c.stop)
	})
	c.closeMu.Unlock()
	<-c.done
	return nil
}
