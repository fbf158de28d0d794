package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
)

const defaultNotifyTimeout = 10 * time.Second

type watch struct {
	url   string
	since time.Time
}

// notifier POSTs the terminal status to the callback_url a caller gave on
// send. Each id is notified at most once.
type notifier struct {
	client *http.Client
	log    *logger.Events

	mu      sync.Mutex
	pending map[model.BridgeID]watch
	wg      sync.WaitGroup
}

type notification struct {
	BridgeID   model.BridgeID      `json:"sms_bridge_id"`
	ProviderID model.ProviderID    `json:"provider_id"`
	Status     model.MessageStatus `json:"status"`
	StatusAt   time.Time           `json:"status_at"`
	Source     string              `json:"source"`
}

func newNotifier(timeout time.Duration, log *logger.Events) *notifier {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &notifier{
		client:  &http.Client{Timeout: timeout},
		log:     log,
		pending: make(map[model.BridgeID]watch),
	}
}

func (n *notifier) watch(id model.BridgeID, url string) {
	n.mu.Lock()
	n.pending[id] = watch{url: url, since: time.Now()}
	n.mu.Unlock()
}

// resolved runs on the tracker's goroutines, so the POST goes async.
func (n *notifier) resolved(rec model.StatusRecord, source string) {
	n.mu.Lock()
	w, ok := n.pending[rec.BridgeID]
	delete(n.pending, rec.BridgeID)
	n.mu.Unlock()
	if !ok {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		body := notification{
			BridgeID:   rec.BridgeID,
			ProviderID: rec.ProviderID,
			Status:     rec.Status,
			StatusAt:   rec.StatusAt,
			Source:     source,
		}
		if err := n.post(context.Background(), w.url, body); err != nil {
			n.log.Warning("CallbackNotifyFailed", logger.Fields{BridgeID: rec.BridgeID.String(), ProviderID: rec.ProviderID.String()}, err.Error())
			return
		}
		n.log.Info("CallbackNotified", logger.Fields{BridgeID: rec.BridgeID.String()}, w.url)
	}()
}

func (n *notifier) post(ctx context.Context, url string, body notification) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("callback %s status=%d", url, res.StatusCode)
	}
	return nil
}

func (n *notifier) prune(before time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, w := range n.pending {
		if w.since.Before(before) {
			delete(n.pending, id)
		}
	}
}

// wait blocks until in-flight notifications finish.
func (n *notifier) wait() { n.wg.Wait() }
