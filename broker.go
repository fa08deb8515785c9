package logbroker

import (
	"bytes"
	"sync/atomic"

	"github.com/logbroker/logbroker/internal/bufpool"
	"github.com/logbroker/logbroker/internal/metrics"
)

// broker is the single dispatcher goroutine sitting between every
// Logger and the writer registry. It owns the one bounded channel
// producers send into, formats each record exactly once into a
// pooled buffer, and fans the result out to every writer the registry
// says should see it.
type broker struct {
	cfg *Config
	reg *Registry

	in      chan logMessage
	done    chan struct{}
	stopNow uint32 // atomic bool, consulted once per loop iteration

	metrics *metrics.Collector
}

func newBroker(cfg *Config, reg *Registry) *broker {
	b := &broker{
		cfg:     cfg,
		reg:     reg,
		in:      make(chan logMessage, cfg.ChannelSize),
		done:    make(chan struct{}),
		metrics: metrics.NewCollector(),
	}
	go b.run()
	return b
}

// send is the channel end Loggers hold; capacity-bound, so a full
// channel blocks the caller rather than dropping the record.
func (b *broker) send() chan<- logMessage { return b.in }

// metricsSnapshot reports the broker's own queue depth/capacity
// alongside the counters its Collector has accumulated.
func (b *broker) metricsSnapshot() metrics.Metrics {
	return b.metrics.GetMetrics(len(b.in), cap(b.in))
}

func (b *broker) run() {
	defer close(b.done)
	buf := bufpool.GetBuffer()
	defer bufpool.PutBuffer(buf)

	for msg := range b.in {
		if atomic.LoadUint32(&b.stopNow) == 1 {
			if msg.kind == cmdStop {
				return
			}
			if msg.done != nil {
				msg.done <- nil
			}
			continue
		}

		if b.handle(msg, buf) {
			return
		}
	}
}

// handle processes one command. It returns true when the broker
// should exit its loop (a Stop command was processed).
func (b *broker) handle(msg logMessage, buf *bytes.Buffer) bool {
	switch msg.kind {
	case cmdMessage:
		b.dispatch(msg.rec, buf)
	case cmdMessageRemote:
		b.dispatchRemote(msg.rec)
	case cmdSync:
		msg.done <- b.reg.syncKind(msg.typeMask, msg.timeout)
	case cmdSyncAll:
		msg.done <- b.reg.syncAll(msg.timeout)
	case cmdRotate:
		b.reg.rotate(msg.path)
	case cmdStop:
		if msg.now {
			atomic.StoreUint32(&b.stopNow, 1)
		} else {
			b.drain(buf)
		}
		return true
	}
	return false
}

// drain processes whatever is already buffered in the channel
// (graceful drain); called once, right before the broker exits.
func (b *broker) drain(buf *bytes.Buffer) {
	for {
		select {
		case msg := <-b.in:
			b.handle(msg, buf)
		default:
			return
		}
	}
}

func (b *broker) dispatch(rec Record, buf *bytes.Buffer) {
	if err := formatRecord(b.cfg, rec, buf); err != nil {
		b.metrics.TrackError("format")
		return
	}
	b.metrics.TrackMessageLogged(int(rec.Level))
	formatted := make([]byte, buf.Len())
	copy(formatted, buf.Bytes())
	b.reg.dispatch(formatted, rec)
}

// dispatchRemote forwards a record that arrived pre-formatted from a
// NetServer, bypassing the formatter entirely.
func (b *broker) dispatchRemote(rec Record) {
	b.metrics.TrackMessageLogged(int(rec.Level))
	b.reg.dispatch([]byte(rec.Message), rec)
}

// stop requests a shutdown of the broker goroutine and blocks until
// it has exited. now forces the shared stop flag before the Stop
// command is even processed, so in-flight records already queued may
// be discarded rather than drained.
func (b *broker) stop(now bool) {
	if now {
		atomic.StoreUint32(&b.stopNow, 1)
	}
	b.in <- logMessage{kind: cmdStop, now: now}
	<-b.done
}
