package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/kafka"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/provider"
)

// Fetcher is the part of the kafka consumer the ingester needs.
type Fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// CallbackSink takes a vendor event; gateway.Service is one.
type CallbackSink interface {
	HandleCallback(ctx context.Context, event string, body []byte) error
}

// CallbackIngester feeds vendor callbacks relayed through kafka into the
// provider. The message key is the event name, the value the vendor
// payload. Bad payloads are logged and committed; transient failures are
// retried a few times first.
type CallbackIngester struct {
	src     Fetcher
	sink    CallbackSink
	log     *logger.Events
	retries int
	backoff time.Duration
}

func NewCallbackIngester(src Fetcher, sink CallbackSink, log *logger.Events) *CallbackIngester {
	if log == nil {
		log = logger.Nop()
	}
	return &CallbackIngester{src: src, sink: sink, log: log, retries: 3, backoff: 200 * time.Millisecond}
}

// Run blocks until ctx is cancelled.
func (w *CallbackIngester) Run(ctx context.Context) error {
	for {
		m, err := w.src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warning("KafkaFetchFailed", logger.Fields{}, err.Error())
			if !sleep(ctx, w.backoff) {
				return nil
			}
			continue
		}

		w.handle(ctx, m)

		if err := w.src.Commit(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("KafkaCommitFailed", logger.Fields{}, fmt.Sprintf("offset %d: %v", m.Offset, err))
		}
	}
}

func (w *CallbackIngester) handle(ctx context.Context, m kafka.Message) {
	event := string(m.Key)
	var err error
	for attempt := 0; attempt <= w.retries; attempt++ {
		err = w.sink.HandleCallback(ctx, event, m.Value)
		if err == nil || !errors.Is(err, provider.ErrUnavailable) {
			break
		}
		if !sleep(ctx, w.backoff) {
			break
		}
	}
	if err != nil {
		w.log.Error("CallbackRejected", logger.Fields{},
			fmt.Sprintf("event=%q partition=%d offset=%d: %v", event, m.Partition, m.Offset, err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
