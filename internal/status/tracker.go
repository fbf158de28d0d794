// Package status correlates sent messages with the delivery outcome their
// vendor reports later. Each record moves from pending to exactly one
// terminal status; the winner among vendor callback, watchdog timeout and
// status poll is decided by a compare-and-swap on the record.
package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/metrics"
	"github.com/jmehdipour/sms-bridge/internal/model"
)

const (
	DefaultTimeout     = 10*time.Minute + 30*time.Second
	DefaultEventBuffer = 256
	DefaultMaxOrphans  = 1024
)

// Resolution sources.
const (
	SourceCallback = "callback"
	SourceWatchdog = "watchdog"
	SourcePoll     = "poll"
)

var (
	ErrNotFound       = errors.New("status record not found")
	ErrAlreadyTracked = errors.New("message already tracked")
	ErrNoProviderID   = errors.New("provider id is required")
)

// Event is a delivery report pushed by a vendor. Vendors only know their
// own id, so correlation goes through the reverse index.
type Event struct {
	ProviderID model.ProviderID
	Status     model.MessageStatus
	At         time.Time
}

// Poller fetches the live status for vendors that never push one.
type Poller interface {
	PollStatus(ctx context.Context, id model.ProviderID) (model.MessageStatus, error)
}

type Config struct {
	Timeout     time.Duration // watchdog per sent message
	EventBuffer int           // bounded callback queue
	MaxOrphans  int           // parked uncorrelated callbacks
	OnResolve   func(rec model.StatusRecord, source string)
}

type resolution struct {
	status model.MessageStatus
	at     time.Time
}

type record struct {
	bridgeID   model.BridgeID
	providerID model.ProviderID
	sentAt     time.Time
	final      atomic.Pointer[resolution]
	timer      *time.Timer // guarded by Tracker.mu
}

func (r *record) snapshot() model.StatusRecord {
	out := model.StatusRecord{
		BridgeID:   r.bridgeID,
		ProviderID: r.providerID,
		Status:     model.StatusPending,
		SentAt:     r.sentAt,
	}
	if f := r.final.Load(); f != nil {
		out.Status = f.status
		out.StatusAt = f.at
	}
	return out
}

// orphan is a callback that arrived before the send acknowledgement was tracked.
type orphan struct {
	status model.MessageStatus
	at     time.Time
	parked time.Time
}

type Tracker struct {
	mu         sync.RWMutex
	byBridge   map[model.BridgeID]*record
	byProvider map[model.ProviderID]model.BridgeID
	orphans    map[model.ProviderID]orphan

	events     chan Event
	timeout    time.Duration
	maxOrphans int
	onResolve func(model.StatusRecord, string)
	log       *logger.Events
	now       func() time.Time
}

func NewTracker(cfg Config, log *logger.Events) *Tracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.MaxOrphans <= 0 {
		cfg.MaxOrphans = DefaultMaxOrphans
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		byBridge:   make(map[model.BridgeID]*record),
		byProvider: make(map[model.ProviderID]model.BridgeID),
		orphans:    make(map[model.ProviderID]orphan),
		events:     make(chan Event, cfg.EventBuffer),
		timeout:    cfg.Timeout,
		maxOrphans: cfg.MaxOrphans,
		onResolve:  cfg.OnResolve,
		log:        log,
		now:        time.Now,
	}
}

// Track records an acknowledged send as pending and arms its watchdog.
func (t *Tracker) Track(bridgeID model.BridgeID, providerID model.ProviderID) error {
	if providerID.IsZero() {
		return ErrNoProviderID
	}

	t.mu.Lock()
	if _, ok := t.byBridge[bridgeID]; ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, bridgeID)
	}
	if owner, ok := t.byProvider[providerID]; ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: provider id %s belongs to %s", ErrAlreadyTracked, providerID, owner)
	}

	rec := &record{bridgeID: bridgeID, providerID: providerID, sentAt: t.now()}
	t.byBridge[bridgeID] = rec
	t.byProvider[providerID] = bridgeID

	early, hasEarly := t.orphans[providerID]
	if hasEarly {
		delete(t.orphans, providerID)
		hasEarly = !early.parked.Before(rec.sentAt.Add(-t.timeout))
	}
	if !hasEarly {
		rec.timer = time.AfterFunc(t.timeout, func() { t.expire(bridgeID) })
	}
	t.mu.Unlock()

	metrics.InFlight.Inc()

	if hasEarly {
		t.resolve(rec, early.status, early.at, SourceCallback)
	}
	return nil
}

// Notify queues a vendor callback for the worker. It never blocks; false
// means the buffer is full and the event was dropped.
func (t *Tracker) Notify(ev Event) bool {
	select {
	case t.events <- ev:
		return true
	default:
		t.log.Error("CallbackDropped", logger.Fields{ProviderID: ev.ProviderID.String()},
			fmt.Sprintf("callback buffer full, dropped status %s", ev.Status))
		return false
	}
}

// Run drains queued callbacks until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-t.events:
			t.Apply(ev)
		}
	}
}

// Apply correlates a callback and settles the record. It returns true only
// when this call wrote the terminal status.
func (t *Tracker) Apply(ev Event) bool {
	if !ev.Status.Terminal() {
		return false
	}
	if ev.At.IsZero() {
		ev.At = t.now()
	}

	t.mu.Lock()
	bridgeID, ok := t.byProvider[ev.ProviderID]
	var (
		rec    *record
		parked bool
	)
	if ok {
		rec = t.byBridge[bridgeID]
	} else {
		parked = t.parkLocked(ev)
	}
	t.mu.Unlock()

	if rec == nil {
		if parked {
			t.log.Warning("UncorrelatedCallback", logger.Fields{ProviderID: ev.ProviderID.String()},
				fmt.Sprintf("status %s held until the send is acknowledged", ev.Status))
		} else {
			t.log.Error("UncorrelatedCallback", logger.Fields{ProviderID: ev.ProviderID.String()},
				fmt.Sprintf("status %s dropped, %d uncorrelated callbacks already held", ev.Status, t.maxOrphans))
		}
		return false
	}

	won := t.resolve(rec, ev.Status, ev.At, SourceCallback)
	if !won {
		t.log.Info("LateCallback", logger.Fields{BridgeID: bridgeID.String(), ProviderID: ev.ProviderID.String()},
			fmt.Sprintf("ignored %s, status already %s", ev.Status, rec.snapshot().Status))
	}
	return won
}

// parkLocked holds a callback for a vendor id not tracked yet. Parked
// callbacks live no longer than the watchdog timeout and are capped at
// maxOrphans. Callers hold t.mu.
func (t *Tracker) parkLocked(ev Event) bool {
	if _, ok := t.orphans[ev.ProviderID]; !ok && len(t.orphans) >= t.maxOrphans {
		cutoff := t.now().Add(-t.timeout)
		for pid, o := range t.orphans {
			if o.parked.Before(cutoff) {
				delete(t.orphans, pid)
			}
		}
		if len(t.orphans) >= t.maxOrphans {
			return false
		}
	}
	t.orphans[ev.ProviderID] = orphan{status: ev.Status, at: ev.At, parked: t.now()}
	return true
}

func (t *Tracker) expire(bridgeID model.BridgeID) {
	t.mu.RLock()
	rec := t.byBridge[bridgeID]
	t.mu.RUnlock()
	if rec == nil {
		return
	}

	if t.resolve(rec, model.StatusTimedOut, t.now(), SourceWatchdog) {
		t.log.Error("Timeout", logger.Fields{BridgeID: bridgeID.String(), ProviderID: rec.providerID.String()},
			fmt.Sprintf("no delivery status after %s", t.timeout))
	}
}

// resolve is the single terminal write path.
func (t *Tracker) resolve(rec *record, st model.MessageStatus, at time.Time, source string) bool {
	if !rec.final.CompareAndSwap(nil, &resolution{status: st, at: at}) {
		return false
	}

	t.mu.Lock()
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
	t.mu.Unlock()

	metrics.InFlight.Dec()
	metrics.StatusResolutions.WithLabelValues(st.String(), source).Inc()

	snap := rec.snapshot()
	if source != SourceWatchdog {
		t.log.Info("StatusResolved", logger.Fields{BridgeID: rec.bridgeID.String(), ProviderID: rec.providerID.String()},
			fmt.Sprintf("status %s via %s", st, source))
	}
	if t.onResolve != nil {
		t.onResolve(snap, source)
	}
	return true
}

// Status returns the current status of a tracked message.
func (t *Tracker) Status(bridgeID model.BridgeID) (model.MessageStatus, error) {
	rec, err := t.Record(bridgeID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// ProviderID resolves the vendor id for a tracked message.
func (t *Tracker) ProviderID(bridgeID model.BridgeID) (model.ProviderID, error) {
	rec, err := t.Record(bridgeID)
	if err != nil {
		return "", err
	}
	return rec.ProviderID, nil
}

func (t *Tracker) Record(bridgeID model.BridgeID) (model.StatusRecord, error) {
	t.mu.RLock()
	rec, ok := t.byBridge[bridgeID]
	t.mu.RUnlock()
	if !ok {
		return model.StatusRecord{}, fmt.Errorf("%w: %s", ErrNotFound, bridgeID)
	}
	return rec.snapshot(), nil
}

// Poll asks the vendor for the live status of a pending message and settles
// the record when the answer is terminal. Poll failures keep the message
// pending.
func (t *Tracker) Poll(ctx context.Context, bridgeID model.BridgeID, p Poller) (model.MessageStatus, error) {
	t.mu.RLock()
	rec, ok := t.byBridge[bridgeID]
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, bridgeID)
	}
	if f := rec.final.Load(); f != nil || p == nil {
		return rec.snapshot().Status, nil
	}

	st, err := p.PollStatus(ctx, rec.providerID)
	if err != nil {
		t.log.Warning("StatusPollFailed", logger.Fields{BridgeID: bridgeID.String(), ProviderID: rec.providerID.String()}, err.Error())
		return model.StatusPending, nil
	}
	if st.Terminal() {
		t.resolve(rec, st, t.now(), SourcePoll)
	}
	return rec.snapshot().Status, nil
}

// Recent returns records sent within window, newest first.
func (t *Tracker) Recent(window time.Duration) []model.StatusRecord {
	cutoff := t.now().Add(-window)

	t.mu.RLock()
	out := make([]model.StatusRecord, 0, len(t.byBridge))
	for _, rec := range t.byBridge {
		if !rec.sentAt.Before(cutoff) {
			out = append(out, rec.snapshot())
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out
}

// Sweep drops records and parked callbacks older than before and returns
// the dropped records.
func (t *Tracker) Sweep(before time.Time) []model.StatusRecord {
	t.mu.Lock()
	var removed []model.StatusRecord
	pending := 0
	for id, rec := range t.byBridge {
		if !rec.sentAt.Before(before) {
			continue
		}
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
		snap := rec.snapshot()
		if snap.Status == model.StatusPending {
			pending++
		}
		removed = append(removed, snap)
		delete(t.byBridge, id)
		delete(t.byProvider, rec.providerID)
	}
	for pid, o := range t.orphans {
		if o.parked.Before(before) {
			delete(t.orphans, pid)
		}
	}
	t.mu.Unlock()

	metrics.InFlight.Sub(float64(pending))
	return removed
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byBridge)
}

// Close stops every armed watchdog.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.byBridge {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
	}
}

// checkIndex verifies the reverse index against the primary map.
func (t *Tracker) checkIndex() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.byBridge) != len(t.byProvider) {
		return fmt.Errorf("index size mismatch: %d records, %d provider ids", len(t.byBridge), len(t.byProvider))
	}
	for pid, bid := range t.byProvider {
		rec, ok := t.byBridge[bid]
		if !ok || rec.providerID != pid {
			return fmt.Errorf("provider id %s points at %s which does not own it", pid, bid)
		}
	}
	return nil
}
