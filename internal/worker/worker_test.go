package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/sms-bridge/internal/kafka"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/repository"
)

type fakeFetcher struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	fetchErr  int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErr > 0 {
		f.fetchErr--
		f.mu.Unlock()
		return kafka.Message{}, errors.New("broker hiccup")
	}
	if len(f.msgs) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	f.mu.Unlock()
	return m, nil
}

func (f *fakeFetcher) Commit(_ context.Context, m kafka.Message) error {
	f.mu.Lock()
	f.committed = append(f.committed, m.Offset)
	f.mu.Unlock()
	return nil
}

func (f *fakeFetcher) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

type call struct {
	event string
	body  string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []call
	errs  map[string][]error // by body, consumed in order
}

func (s *fakeSink) HandleCallback(_ context.Context, event string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{event, string(body)})
	if q := s.errs[string(body)]; len(q) > 0 {
		s.errs[string(body)] = q[1:]
		return q[0]
	}
	return nil
}

func TestCallbackIngester(t *testing.T) {
	src := &fakeFetcher{
		fetchErr: 1,
		msgs: []kafka.Message{
			{Key: []byte("status"), Value: []byte(`ok`), Offset: 1},
			{Key: []byte("status"), Value: []byte(`poison`), Offset: 2},
			{Key: []byte("inbound"), Value: []byte(`busy`), Offset: 3},
		},
	}
	sink := &fakeSink{errs: map[string][]error{
		"poison": {provider.ErrInvalidRequest},
		"busy":   {provider.ErrUnavailable, provider.ErrUnavailable},
	}}

	w := NewCallbackIngester(src, sink, nil)
	w.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(src.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, src.commits())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	// poison is not retried, busy is retried until it goes through
	require.Len(t, sink.calls, 5)
	assert.Equal(t, call{"status", "ok"}, sink.calls[0])
	assert.Equal(t, call{"inbound", "busy"}, sink.calls[4])
}

type fakeTracker struct {
	recs   []model.StatusRecord
	before time.Time
}

func (f *fakeTracker) Sweep(before time.Time) []model.StatusRecord {
	f.before = before
	return f.recs
}

type fakePruner struct{ before time.Time }

func (f *fakePruner) Prune(before time.Time) int {
	f.before = before
	return 2
}

type fakeArchive struct {
	got []model.StatusRecord
	err error
}

func (f *fakeArchive) InsertBatch(_ context.Context, recs []model.StatusRecord) error {
	f.got = append(f.got, recs...)
	return f.err
}

func (f *fakeArchive) ListRecent(context.Context, int) ([]repository.ArchivedStatus, error) {
	return nil, nil
}

func TestRetention_SweepOnce(t *testing.T) {
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	tr := &fakeTracker{recs: []model.StatusRecord{{BridgeID: model.NewBridgeID(), Status: model.StatusDelivered}}}
	pr := &fakePruner{}
	ar := &fakeArchive{}

	r := NewRetention(tr, pr, ar, 30*24*time.Hour, time.Hour, nil)
	r.now = func() time.Time { return now }

	assert.Equal(t, 1, r.SweepOnce(context.Background()))
	want := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, want, tr.before)
	assert.Equal(t, want, pr.before)
	assert.Len(t, ar.got, 1)

	// archive failures do not stop the sweep
	ar.err = errors.New("db down")
	assert.Equal(t, 1, r.SweepOnce(context.Background()))

	// no archive configured
	r = NewRetention(tr, nil, nil, 0, 0, nil)
	assert.Equal(t, 1, r.SweepOnce(context.Background()))
}
