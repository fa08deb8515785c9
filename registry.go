package logbroker

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/logbroker/logbroker/internal/metrics"
	"github.com/logbroker/logbroker/pkg/types"
	"github.com/logbroker/logbroker/pkg/writers"
)

// writerEntry wraps one registered writer with its own fine-grained
// mutex over the mutable parts of its config (enabled flag, level,
// filters), so the broker's per-record dispatch takes the registry's
// coarse lock only as a read lock while copying the entry list;
// add/remove take it exclusively.
type writerEntry struct {
	id     uint32
	kind   WriterKind
	config WriterConfig

	mu            sync.Mutex
	enabled       bool
	level         Level
	domainFilter  *regexp.Regexp
	messageFilter *regexp.Regexp

	instance types.Writer // nil for the root pseudo-writer (id 0)
	rekeyer  rekeyer
}

// rekeyer is implemented by writers whose key material can be swapped
// without a restart (NetClient, NetServer).
type rekeyer interface {
	SetKey(key []byte) error
}

// Registry maps writer-ID to writer instance. Writer-ID 0 is always
// present and carries the shared root metadata; fresh IDs increase
// monotonically and are never recycled so per-ID operations stay
// stable across add/remove churn.
type Registry struct {
	cfg *Config

	mu      sync.RWMutex
	writers map[uint32]*writerEntry
	order   []uint32 // cached ascending key order, rebuilt on add/remove
	nextID  uint32

	brokerSend chan<- logMessage
	metrics    *metrics.Collector
}

// newRegistry constructs a registry with only the root pseudo-writer
// present. The broker's send channel is wired in afterward via
// attachBroker, since the broker and registry are constructed
// together by Root and each needs the other.
func newRegistry(cfg *Config) *Registry {
	r := &Registry{
		cfg:     cfg,
		writers: make(map[uint32]*writerEntry),
		nextID:  1,
	}
	r.writers[0] = &writerEntry{id: 0, kind: KindRoot, enabled: true, level: NOTSET}
	r.order = []uint32{0}
	return r
}

func (r *Registry) attachBroker(send chan<- logMessage, met *metrics.Collector) {
	r.brokerSend = send
	r.metrics = met
}

// SetRootWriter replaces entry 0's shared metadata in place; it is
// never removed.
func (r *Registry) SetRootWriter(cfg WriterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	root := r.writers[0]
	root.mu.Lock()
	defer root.mu.Unlock()
	root.config = cfg
	root.enabled = cfg.Enabled
	root.level = cfg.Level
}

// AddWriter constructs a writer of the kind named in cfg, registers it
// under a fresh id, and returns that id. The id is never 0 and is
// never reused, even after the writer is later removed.
func (r *Registry) AddWriter(cfg WriterConfig) (uint32, error) {
	instance, rk, err := r.build(cfg)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++

	entry := &writerEntry{
		id:       id,
		kind:     cfg.Kind,
		config:   cfg,
		enabled:  cfg.Enabled,
		level:    cfg.Level,
		instance: instance,
		rekeyer:  rk,
	}
	entry.domainFilter = cfg.DomainFilter
	entry.messageFilter = cfg.MessageFilter
	r.writers[id] = entry
	r.rebuildOrderLocked()
	return id, nil
}

func (r *Registry) build(cfg WriterConfig) (types.Writer, rekeyer, error) {
	report := func(op, dest string, err error) {
		if r.cfg.ErrorHandler != nil {
			r.cfg.ErrorHandler(LogError{Operation: op, Destination: dest, Err: err, Level: ErrorLevelWarn, Timestamp: time.Now()})
		}
	}

	switch cfg.Kind {
	case KindConsole:
		if cfg.Console == nil {
			return nil, nil, ErrInvalidValue("console", fmt.Errorf("missing console config"))
		}
		return writers.NewConsole(*cfg.Console, report), nil, nil
	case KindFile:
		if cfg.File == nil {
			return nil, nil, ErrInvalidValue("file", fmt.Errorf("missing file config"))
		}
		fw, err := writers.NewFile(*cfg.File, report)
		if err != nil {
			return nil, nil, ErrIo("file", err)
		}
		return fw, nil, nil
	case KindSyslog:
		if cfg.Syslog == nil {
			return nil, nil, ErrInvalidValue("syslog", fmt.Errorf("missing syslog config"))
		}
		sw, err := writers.NewEventlog(*cfg.Syslog, report)
		if err != nil {
			return nil, nil, ErrSyslog(err)
		}
		return sw, nil, nil
	case KindCallback:
		if cfg.Callback == nil {
			return nil, nil, ErrInvalidValue("callback", fmt.Errorf("missing callback config"))
		}
		return writers.NewCallback(*cfg.Callback, report), nil, nil
	case KindClient:
		if cfg.Client == nil {
			return nil, nil, ErrInvalidValue("client", fmt.Errorf("missing client config"))
		}
		nc := writers.NewNetClient(*cfg.Client, report)
		return nc, nc, nil
	case KindServer:
		if cfg.Server == nil {
			return nil, nil, ErrInvalidValue("server", fmt.Errorf("missing server config"))
		}
		srvCfg := *cfg.Server
		if srvCfg.Encryption.Kind == EncryptionNone {
			srvCfg.Encryption = Encryption{Kind: EncryptionAuthKey, Key: AuthKey()}
		}
		if srvCfg.Encryption.Kind == EncryptionAES && len(srvCfg.Encryption.Key) != 32 {
			return nil, nil, ErrInvalidEncryption("server", "aes", fmt.Errorf("AES key must be 32 bytes"))
		}
		sink := func(level uint8, payload []byte) {
			if r.brokerSend == nil {
				return
			}
			r.brokerSend <- logMessage{kind: cmdMessageRemote, rec: Record{
				Level:     level,
				Domain:    "remote",
				Message:   string(payload),
				Remote:    true,
				Timestamp: time.Now(),
			}}
		}
		ns, err := writers.NewNetServer(srvCfg, sink, report)
		if err != nil {
			return nil, nil, ErrIo("server", err)
		}
		return ns, ns, nil
	default:
		return nil, nil, ErrInvalidValue("writer", fmt.Errorf("unknown writer kind %v", cfg.Kind))
	}
}

// RemoveWriter removes and returns the instance at wid for the caller
// to close; id 0 (root) cannot be removed.
func (r *Registry) RemoveWriter(wid uint32) (types.Writer, error) {
	if wid == 0 {
		return nil, ErrInvalidValue("registry", fmt.Errorf("writer 0 (root) cannot be removed"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.writers[wid]
	if !ok {
		return nil, ErrInvalidValue("registry", fmt.Errorf("no writer with id %d", wid))
	}
	delete(r.writers, wid)
	r.rebuildOrderLocked()
	return entry.instance, nil
}

func (r *Registry) rebuildOrderLocked() {
	order := make([]uint32, 0, len(r.writers))
	for id := range r.writers {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	r.order = order
}

func (r *Registry) entry(wid uint32) (*writerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.writers[wid]
	if !ok {
		return nil, ErrInvalidValue("registry", fmt.Errorf("no writer with id %d", wid))
	}
	return e, nil
}

// Enable turns a writer's enabled bit on without restarting it.
func (r *Registry) Enable(wid uint32) error {
	e, err := r.entry(wid)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()
	return nil
}

// Disable turns a writer's enabled bit off without destroying it.
func (r *Registry) Disable(wid uint32) error {
	e, err := r.entry(wid)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.enabled = false
	e.mu.Unlock()
	return nil
}

// EnableType enables every writer of kind.
func (r *Registry) EnableType(kind WriterKind) { r.setTypeEnabled(kind, true) }

// DisableType disables every writer of kind.
func (r *Registry) DisableType(kind WriterKind) { r.setTypeEnabled(kind, false) }

func (r *Registry) setTypeEnabled(kind WriterKind, enabled bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.writers {
		if e.kind == kind {
			e.mu.Lock()
			e.enabled = enabled
			e.mu.Unlock()
		}
	}
}

// SetLevel changes a writer's gating level in place.
func (r *Registry) SetLevel(wid uint32, level Level) error {
	e, err := r.entry(wid)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.level = level
	e.mu.Unlock()
	return nil
}

// SetDomainFilter compiles pattern and installs it on wid; an empty
// pattern clears the filter.
func (r *Registry) SetDomainFilter(wid uint32, pattern string) error {
	e, err := r.entry(wid)
	if err != nil {
		return err
	}
	m, err := compilePattern(pattern)
	if err != nil {
		return ErrInvalidValue("domain_filter", err)
	}
	e.mu.Lock()
	e.domainFilter = m
	e.mu.Unlock()
	return nil
}

// SetMessageFilter compiles pattern and installs it on wid; an empty
// pattern clears the filter.
func (r *Registry) SetMessageFilter(wid uint32, pattern string) error {
	e, err := r.entry(wid)
	if err != nil {
		return err
	}
	m, err := compilePattern(pattern)
	if err != nil {
		return ErrInvalidValue("message_filter", err)
	}
	e.mu.Lock()
	e.messageFilter = m
	e.mu.Unlock()
	return nil
}

// compilePattern compiles pattern, treating an empty pattern as "no
// filter" (nil) rather than an error.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// matchesFilter reports whether re accepts s; a nil regex always
// matches, mirroring "no filter configured".
func matchesFilter(re *regexp.Regexp, s string) bool {
	if re == nil {
		return true
	}
	return re.MatchString(s)
}

// SetEncryption swaps the running writer's key atomically: for
// clients this rotates the key sealing future connections, for
// servers it replaces the key accepted from incoming connections.
// Writers that carry no key material (console, file, ...) reject the
// call.
func (r *Registry) SetEncryption(wid uint32, key []byte) error {
	e, err := r.entry(wid)
	if err != nil {
		return err
	}
	if e.rekeyer == nil {
		return ErrInvalidEncryption("registry", "none", fmt.Errorf("writer %d does not carry key material", wid))
	}
	return e.rekeyer.SetKey(key)
}

// GetWriterConfig returns a copy of wid's registered configuration.
func (r *Registry) GetWriterConfig(wid uint32) (WriterConfig, error) {
	e, err := r.entry(wid)
	if err != nil {
		return WriterConfig{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config, nil
}

// GetServerConfig returns wid's server config, if it is a server
// writer.
func (r *Registry) GetServerConfig(wid uint32) (ServerConfig, error) {
	cfg, err := r.GetWriterConfig(wid)
	if err != nil {
		return ServerConfig{}, err
	}
	if cfg.Kind != KindServer || cfg.Server == nil {
		return ServerConfig{}, ErrInvalidValue("registry", fmt.Errorf("writer %d is not a server", wid))
	}
	return *cfg.Server, nil
}

// GetServerAddressesPorts returns the resolved host:port of every
// registered NetServer, keyed by writer id.
func (r *Registry) GetServerAddressesPorts() map[uint32]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint32]string)
	for id, e := range r.writers {
		if ns, ok := e.instance.(interface{ Port() uint16 }); ok {
			host := "127.0.0.1"
			if e.config.Server != nil && e.config.Server.Host != "" {
				host = e.config.Server.Host
			}
			out[id] = fmt.Sprintf("%s:%d", host, ns.Port())
		}
	}
	return out
}

// snapshot returns the ordered list of entries to dispatch a record
// to, taking the registry's read lock only for the duration of the
// copy.
func (r *Registry) snapshot() []*writerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*writerEntry, 0, len(r.order))
	for _, id := range r.order {
		if id == 0 {
			continue // root carries no worker, never a dispatch target
		}
		out = append(out, r.writers[id])
	}
	return out
}

// dispatch sends formatted to every enabled writer (ascending id)
// whose level and filters accept rec. Send failures are reported and
// do not stop the fan-out to the remaining writers.
func (r *Registry) dispatch(formatted []byte, rec Record) {
	for _, e := range r.snapshot() {
		e.mu.Lock()
		enabled := e.enabled
		level := e.level
		domainFilter := e.domainFilter
		messageFilter := e.messageFilter
		instance := e.instance
		e.mu.Unlock()

		if !enabled || instance == nil {
			continue
		}
		if Level(rec.Level) < level {
			continue
		}
		if !matchesFilter(domainFilter, rec.Domain) {
			continue
		}
		if !matchesFilter(messageFilter, rec.Message) {
			continue
		}
		if err := instance.Send(formatted, rec); err != nil {
			if r.metrics != nil {
				r.metrics.TrackMessageDropped()
			}
			if r.cfg.ErrorHandler != nil {
				r.cfg.ErrorHandler(LogError{
					Operation:   "dispatch",
					Destination: e.kind.String(),
					Err:         err,
					Level:       ErrorLevelWarn,
					Timestamp:   time.Now(),
				})
			}
		}
	}
}

// syncKind flushes every enabled writer of kind and waits up to
// timeout; Timeout is returned if any one of them does not ack in
// time, but every writer is still asked to flush.
func (r *Registry) syncKind(kind WriterKind, timeout time.Duration) error {
	return r.syncMatching(timeout, func(e *writerEntry) bool { return e.kind == kind })
}

// syncAll flushes every enabled writer.
func (r *Registry) syncAll(timeout time.Duration) error {
	return r.syncMatching(timeout, func(*writerEntry) bool { return true })
}

func (r *Registry) syncMatching(timeout time.Duration, match func(*writerEntry) bool) error {
	entries := r.snapshot()
	var wg sync.WaitGroup
	results := make([]error, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		enabled := e.enabled
		instance := e.instance
		e.mu.Unlock()
		if !enabled || instance == nil || !match(e) {
			continue
		}
		wg.Add(1)
		go func(i int, inst types.Writer) {
			defer wg.Done()
			results[i] = inst.Sync(timeout)
		}(i, instance)
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(timeout):
		return Timeout
	}

	for _, err := range results {
		if err != nil {
			return Timeout
		}
	}
	return nil
}

// rotate sends Rotate to every file writer; each one decides for
// itself whether path matches (an empty path means "all").
func (r *Registry) rotate(path string) {
	for _, e := range r.snapshot() {
		e.mu.Lock()
		instance := e.instance
		kind := e.kind
		e.mu.Unlock()
		if kind != KindFile || instance == nil {
			continue
		}
		if err := instance.Rotate(path); err != nil && r.cfg.ErrorHandler != nil {
			r.cfg.ErrorHandler(LogError{Operation: "rotate", Destination: "file", Err: err, Level: ErrorLevelWarn, Timestamp: time.Now()})
		}
	}
}

// shutdown closes every registered writer (id 0 has no worker to
// close) and aggregates any errors without letting the first one
// short-circuit the rest.
func (r *Registry) shutdown() error {
	r.mu.Lock()
	entries := make([]*writerEntry, 0, len(r.writers))
	for id, e := range r.writers {
		if id == 0 {
			continue
		}
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if e.instance == nil {
			continue
		}
		if err := e.instance.Close(); err != nil {
			errs = append(errs, ErrJoin(e.kind.String(), err))
		}
	}
	return aggregateErrors(errs)
}
