package writers

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestNetClientServerAuthKeyRoundTrip(t *testing.T) {
	const key = "a-shared-secret-value"

	var mu sync.Mutex
	var received []string

	srv, err := NewNetServer(ServerConfig{
		Host:       "127.0.0.1",
		Port:       0,
		Encryption: Encryption{Kind: EncryptionAuthKey, Key: []byte(key)},
	}, func(level uint8, payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	}, NopReporter)
	if err != nil {
		t.Fatalf("NewNetServer: %v", err)
	}
	defer srv.Close()

	client := NewNetClient(ClientConfig{
		Host:       "127.0.0.1",
		Port:       srv.Port(),
		Encryption: Encryption{Kind: EncryptionAuthKey, Key: []byte(key)},
	}, NopReporter)
	defer client.Close()

	if err := client.Send([]byte("hello from client\n"), types.Record{Level: 20}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if received[0] != "hello from client\n" {
		t.Errorf("received = %q, want %q", received[0], "hello from client\n")
	}
}

func TestNetClientServerWrongAuthKeyNeverDelivers(t *testing.T) {
	var mu sync.Mutex
	var received []string

	srv, err := NewNetServer(ServerConfig{
		Host:       "127.0.0.1",
		Port:       0,
		Encryption: Encryption{Kind: EncryptionAuthKey, Key: []byte("server-key")},
	}, func(level uint8, payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	}, NopReporter)
	if err != nil {
		t.Fatalf("NewNetServer: %v", err)
	}
	defer srv.Close()

	client := NewNetClient(ClientConfig{
		Host:       "127.0.0.1",
		Port:       srv.Port(),
		Encryption: Encryption{Kind: EncryptionAuthKey, Key: []byte("wrong-key")},
	}, NopReporter)
	defer client.Close()

	client.Send([]byte("should never arrive\n"), types.Record{Level: 20})
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 0 {
		t.Errorf("received = %v, want none (wrong auth key)", received)
	}
}

// teeProxy sits between a client and target, recording every byte that
// flows from client to target so the test can assert on what actually
// crossed the wire, independent of what the server later decrypts it
// into.
type teeProxy struct {
	ln     net.Listener
	target string

	mu  sync.Mutex
	out bytes.Buffer
}

func newTeeProxy(t *testing.T, target string) *teeProxy {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("proxy listen: %v", err)
	}
	p := &teeProxy{ln: ln, target: target}
	go p.acceptOnce(t)
	return p
}

func (p *teeProxy) acceptOnce(t *testing.T) {
	in, err := p.ln.Accept()
	if err != nil {
		return
	}
	out, err := net.Dial("tcp", p.target)
	if err != nil {
		in.Close()
		return
	}
	go func() {
		p.mu.Lock()
		w := io.MultiWriter(out, &p.out)
		p.mu.Unlock()
		io.Copy(w, in)
	}()
	go io.Copy(in, out)
}

func (p *teeProxy) addr() string { return p.ln.Addr().String() }

func (p *teeProxy) bytesSeen() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, p.out.Len())
	copy(cp, p.out.Bytes())
	return cp
}

func (p *teeProxy) close() { p.ln.Close() }

func TestNetClientServerAESDoesNotExposePlaintextOnWire(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	const plaintext = "top secret payload"

	var mu sync.Mutex
	var received []string

	srv, err := NewNetServer(ServerConfig{
		Host:       "127.0.0.1",
		Port:       0,
		Encryption: Encryption{Kind: EncryptionAES, Key: key},
	}, func(level uint8, payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	}, NopReporter)
	if err != nil {
		t.Fatalf("NewNetServer: %v", err)
	}
	defer srv.Close()

	proxy := newTeeProxy(t, srv.listener.Addr().String())
	defer proxy.close()

	proxyHost, proxyPortStr, err := net.SplitHostPort(proxy.addr())
	if err != nil {
		t.Fatalf("split proxy addr: %v", err)
	}
	proxyPort, _ := strconv.Atoi(proxyPortStr)

	client := NewNetClient(ClientConfig{
		Host:       proxyHost,
		Port:       uint16(proxyPort),
		Encryption: Encryption{Kind: EncryptionAES, Key: key},
	}, NopReporter)
	defer client.Close()

	if err := client.Send([]byte(plaintext), types.Record{Level: 20}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	got := received[0]
	mu.Unlock()
	if got != plaintext {
		t.Errorf("server decrypted payload = %q, want %q", got, plaintext)
	}

	wire := proxy.bytesSeen()
	if bytes.Contains(wire, []byte(plaintext)) {
		t.Errorf("plaintext %q appeared verbatim on the wire: %x", plaintext, wire)
	}
}

func TestNetClientSendAfterCloseReturnsErrClosed(t *testing.T) {
	client := NewNetClient(ClientConfig{Host: "127.0.0.1", Port: 1}, NopReporter)
	client.Close()

	if err := client.Send([]byte("late\n"), types.Record{Level: 20}); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := client.Sync(time.Second); err != ErrClosed {
		t.Errorf("Sync after Close = %v, want ErrClosed", err)
	}
}
