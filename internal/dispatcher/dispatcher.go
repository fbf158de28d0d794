package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/metrics"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultBatchSize   = 10
	DefaultSendTimeout = 15 * time.Second
)

var ErrClosed = errors.New("dispatcher closed")

// ItemState is where an outbound message is in the local queue. It ends
// at the vendor hand-off; delivery status is the tracker's business.
type ItemState int

const (
	Queued ItemState = iota + 1
	InFlight
	Acknowledged
	SendFailed
	Cancelled
)

func (s ItemState) String() string {
	switch s {
	case Queued:
		return "queued"
	case InFlight:
		return "in_flight"
	case Acknowledged:
		return "acknowledged"
	case SendFailed:
		return "send_failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

func (s ItemState) Terminal() bool { return s >= Acknowledged }

// Sender hands one message to the vendor.
type Sender interface {
	Send(ctx context.Context, req model.SendRequest, id model.BridgeID) (model.ProviderID, error)
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	SendTimeout time.Duration
	// OnFinal observes every item once it reaches a terminal item state.
	// It runs on the drain or Close goroutine and must not block.
	OnFinal func(id model.BridgeID, st ItemState)
}

type item struct {
	id  model.BridgeID
	req model.SendRequest
}

type entry struct {
	state ItemState
	at    time.Time
}

// Dispatcher accepts sends instantly and hands them to the vendor from a
// periodic drain. Only one drain runs at a time; a tick that finds one in
// progress does nothing.
type Dispatcher struct {
	sender Sender
	cfg    Config
	log    *logger.Events

	mu     sync.Mutex
	queue  []item
	states map[model.BridgeID]entry
	closed bool

	draining atomic.Bool
	wg       sync.WaitGroup

	now func() time.Time
}

func New(sender Sender, cfg Config, log *logger.Events) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
		log:    log,
		states: make(map[model.BridgeID]entry),
		now:    time.Now,
	}
}

// Enqueue validates req and queues it under a fresh bridge id. It never
// talks to the vendor.
func (d *Dispatcher) Enqueue(req model.SendRequest) (model.BridgeID, error) {
	if err := provider.CheckRequest(req); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return model.BridgeID{}, err
	}

	id := model.NewBridgeID()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return model.BridgeID{}, ErrClosed
	}
	d.queue = append(d.queue, item{id: id, req: req})
	d.states[id] = entry{state: Queued, at: d.now()}
	depth := len(d.queue)
	d.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues("queued").Inc()
	metrics.QueueDepth.Set(float64(depth))
	d.log.Info("SMSQueued", logger.Fields{BridgeID: id.String()}, fmt.Sprintf("queued, %d waiting", depth))
	return id, nil
}

// Run ticks until ctx is done. Each tick starts a drain in its own
// goroutine. Drains outlive ctx; Close waits for them.
func (d *Dispatcher) Run(ctx context.Context) error {
	t := time.NewTicker(d.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if !d.begin() {
				continue
			}
			go func() {
				defer d.end()
				d.drain(context.WithoutCancel(ctx))
			}()
		}
	}
}

// Drain runs one drain synchronously. ran is false when another drain was
// already in progress or the dispatcher is closed.
func (d *Dispatcher) Drain(ctx context.Context) (sent int, ran bool) {
	if !d.begin() {
		return 0, false
	}
	defer d.end()
	return d.drain(ctx), true
}

func (d *Dispatcher) begin() bool {
	if !d.draining.CompareAndSwap(false, true) {
		metrics.DrainSkipped.Inc()
		d.log.Info("DrainSkipped", logger.Fields{}, "previous drain still running")
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.draining.Store(false)
		return false
	}
	d.wg.Add(1)
	return true
}

func (d *Dispatcher) end() {
	d.draining.Store(false)
	d.wg.Done()
}

// drain sends up to BatchSize queued items and returns how many it took.
func (d *Dispatcher) drain(ctx context.Context) int {
	d.mu.Lock()
	n := min(d.cfg.BatchSize, len(d.queue))
	batch := make([]item, n)
	copy(batch, d.queue[:n])
	d.queue = d.queue[n:]
	now := d.now()
	for _, it := range batch {
		d.states[it.id] = entry{state: InFlight, at: now}
	}
	depth := len(d.queue)
	d.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))

	for _, it := range batch {
		d.send(ctx, it)
	}
	return n
}

func (d *Dispatcher) send(ctx context.Context, it item) {
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	pid, err := d.sender.Send(sctx, it.req, it.id)
	cancel()

	st := Acknowledged
	if err != nil {
		st = SendFailed
	}

	d.mu.Lock()
	d.states[it.id] = entry{state: st, at: d.now()}
	d.mu.Unlock()
	d.final(it.id, st)

	if err != nil {
		metrics.MessagesTotal.WithLabelValues("send_failed").Inc()
		d.log.Error("SendFailure", logger.Fields{BridgeID: it.id.String()}, err.Error())
		return
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	d.log.Info("SMSSent", logger.Fields{BridgeID: it.id.String(), ProviderID: pid.String()}, "handed to provider")
}

func (d *Dispatcher) State(id model.BridgeID) (ItemState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.states[id]
	return e.state, ok
}

// Prune forgets finished items whose last change is older than before.
func (d *Dispatcher) Prune(before time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, e := range d.states {
		if e.state.Terminal() && e.at.Before(before) {
			delete(d.states, id)
			n++
		}
	}
	return n
}

// Len is the number of items waiting for a drain.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops accepting sends, waits for a running drain and cancels
// whatever is still queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	left := d.queue
	d.queue = nil
	now := d.now()
	for _, it := range left {
		d.states[it.id] = entry{state: Cancelled, at: now}
	}
	d.mu.Unlock()

	metrics.QueueDepth.Set(0)
	for _, it := range left {
		metrics.MessagesTotal.WithLabelValues("cancelled").Inc()
		d.log.Warning("SMSCancelled", logger.Fields{BridgeID: it.id.String()}, "dispatcher closed before send")
		d.final(it.id, Cancelled)
	}
}

func (d *Dispatcher) final(id model.BridgeID, st ItemState) {
	if d.cfg.OnFinal != nil {
		d.cfg.OnFinal(id, st)
	}
}
