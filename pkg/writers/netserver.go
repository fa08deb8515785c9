package writers

import (
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
	"github.com/logbroker/logbroker/pkg/wire"
)

const (
	netServerChanCap = 10000
	maxPeerErrors    = 3
)

// Sink receives records the server accepted from remote clients,
// already decoded into formatted bytes plus the originating level.
// The registry wires this to the same dispatch path local writers use.
type Sink func(level uint8, payload []byte)

// NetServer accepts TCP connections from NetClients and forwards
// decoded records to Sink. A worker pool sized to the host's CPU count
// serves accepted connections; a peer that errors more than
// maxPeerErrors times is added to an ignore list and its further
// connections are dropped without logging, so one misbehaving client
// cannot spam the handler's error reporting forever.
type NetServer struct {
	cfg    ServerConfig
	sink   Sink
	report Reporter

	listener net.Listener
	port     uint16

	mu         sync.Mutex
	peerErrors map[string]int

	keyMu sync.RWMutex
	key   []byte // current accepted key; overrides cfg.Encryption.Key after SetKey

	conns chan net.Conn
	wg    sync.WaitGroup

	done chan struct{}
	once sync.Once
}

// NewNetServer binds a TCP listener (port 0 picks an ephemeral port),
// optionally persists the listening port (plus the key kind and the
// configured key bytes) to cfg.PortFilePath, and starts its accept loop plus a
// fixed worker pool.
func NewNetServer(cfg ServerConfig, sink Sink, report Reporter) (*NetServer, error) {
	if report == nil {
		report = NopReporter
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netserver listen: %w", err)
	}

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	s := &NetServer{
		cfg:        cfg,
		sink:       sink,
		report:     report,
		listener:   ln,
		port:       port,
		peerErrors: make(map[string]int),
		key:        cfg.Encryption.Key,
		conns:      make(chan net.Conn, netServerChanCap),
		done:       make(chan struct{}),
	}

	if cfg.PortFilePath != "" {
		kind := wire.KeyNone
		switch cfg.Encryption.Kind {
		case EncryptionAuthKey:
			kind = wire.KeyAuth
		case EncryptionAES:
			kind = wire.KeyAES
		}
		if err := wire.WritePortFile(cfg.PortFilePath, port, kind, cfg.Encryption.Key); err != nil {
			ln.Close()
			return nil, fmt.Errorf("netserver port file: %w", err)
		}
	}

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.work()
	}
	go s.acceptLoop()
	return s, nil
}

// Port returns the bound listening port, resolved even when the
// configured port was 0 (ephemeral).
func (s *NetServer) Port() uint16 { return s.port }

// SetKey atomically replaces the key accepted from new connections.
// Connections already in progress keep using the key they opened
// under.
func (s *NetServer) SetKey(key []byte) error {
	s.keyMu.Lock()
	s.key = key
	s.keyMu.Unlock()
	return nil
}

func (s *NetServer) currentKey() []byte {
	s.keyMu.RLock()
	defer s.keyMu.RUnlock()
	return s.key
}

func (s *NetServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			close(s.conns)
			return
		}
		select {
		case s.conns <- conn:
		default:
			conn.Close()
		}
	}
}

func (s *NetServer) work() {
	defer s.wg.Done()
	for conn := range s.conns {
		s.handle(conn)
	}
}

func (s *NetServer) handle(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()

	if s.peerIgnored(peer) {
		return
	}

	var opener *wire.Opener
	if s.cfg.Encryption.Kind == EncryptionAES {
		var err error
		opener, err = wire.NewOpener(s.currentKey())
		if err != nil {
			s.report("decrypt-setup", peer, err)
			return
		}
	}

	for {
		frame, shutdown, err := wire.ReadFrame(conn)
		if shutdown {
			return
		}
		if err != nil {
			return // peer closed or connection error, not a protocol violation
		}

		if frame.Level == wire.HandshakeLevel {
			if s.cfg.Encryption.Kind == EncryptionAuthKey && string(frame.Payload) != string(s.currentKey()) {
				s.recordPeerError(peer, fmt.Errorf("auth key mismatch"))
				return
			}
			continue
		}

		payload := frame.Payload
		if opener != nil {
			payload, err = opener.Open(payload)
			if err != nil {
				if s.recordPeerError(peer, err) {
					return
				}
				continue
			}
		}
		s.sink(frame.Level, payload)
	}
}

// recordPeerError counts a protocol error against peer and reports
// whether the peer has now crossed maxPeerErrors and should be
// disconnected and ignored going forward.
func (s *NetServer) recordPeerError(peer string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerErrors[peer]++
	count := s.peerErrors[peer]
	if count <= maxPeerErrors {
		s.report("protocol", peer, err)
	}
	return count > maxPeerErrors
}

func (s *NetServer) peerIgnored(peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerErrors[peer] > maxPeerErrors
}

func (s *NetServer) Kind() types.WriterKind { return types.KindServer }

// Send is a no-op: NetServer only receives records, it never
// originates them.
func (s *NetServer) Send(formatted []byte, rec types.Record) error { return nil }

// Sync is a no-op for the same reason.
func (s *NetServer) Sync(timeout time.Duration) error { return nil }

func (s *NetServer) Rotate(string) error { return nil }

func (s *NetServer) Close() error {
	s.once.Do(func() {
		conn, err := net.DialTimeout("tcp", s.listener.Addr().String(), time.Second)
		if err == nil {
			conn.Write([]byte{0xFF, 0xFF, 0xFF})
			conn.Close()
		}
		s.listener.Close()
		close(s.done)
	})
	s.wg.Wait()
	return nil
}
