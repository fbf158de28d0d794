// Package inbox keeps received messages until a caller deletes them. The
// whole mailbox is written to one JSON file on every change; inbound volume
// is low enough that a full snapshot is cheap.
package inbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/metrics"
	"github.com/jmehdipour/sms-bridge/internal/model"
)

var ErrNotFound = errors.New("received message not found")

const quietLogEvery = time.Hour

// Inbound is a message as handed over by a vendor. ProviderID may be empty
// when the vendor does not supply one.
type Inbound struct {
	ProviderID model.ProviderID
	From       string
	Label      string
	Text       string
	ReceivedAt time.Time
}

type Store struct {
	path string
	log  *logger.Events

	mu   sync.RWMutex
	msgs map[model.BridgeID]model.ReceivedMessage

	saveMu sync.Mutex

	quietMu      sync.Mutex
	lastQuietLog time.Time
}

func New(path string, log *logger.Events) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		path:         strings.TrimSpace(path),
		log:          log,
		msgs:         make(map[model.BridgeID]model.ReceivedMessage),
		lastQuietLog: time.Now(),
	}
}

func (s *Store) Path() string { return s.path }

// Load restores the last snapshot. A missing file means first run. Any
// other failure is logged and the store starts empty.
func (s *Store) Load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Info("LoadReceivedMessages", logger.Fields{}, "no saved messages, starting fresh at "+s.path)
			return
		}
		s.log.Error("LoadReceivedMessagesFailed", logger.Fields{}, err.Error())
		return
	}

	var msgs []model.ReceivedMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		s.log.Error("LoadReceivedMessagesFailed", logger.Fields{}, fmt.Sprintf("parse %s: %v", s.path, err))
		return
	}

	s.mu.Lock()
	for _, m := range msgs {
		if m.BridgeID.IsZero() {
			continue
		}
		s.msgs[m.BridgeID] = m
	}
	n := len(s.msgs)
	s.mu.Unlock()

	metrics.InboxMessages.Set(float64(n))
	s.log.Info("LoadReceivedMessages", logger.Fields{}, fmt.Sprintf("loaded %d messages from %s", n, s.path))
}

// Add stores an inbound message under a new bridge id and persists the mailbox.
func (s *Store) Add(in Inbound) model.ReceivedMessage {
	if in.ProviderID.IsZero() {
		in.ProviderID = model.SynthesizeProviderID()
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now()
	}

	msg := model.ReceivedMessage{
		BridgeID:   model.NewBridgeID(),
		ProviderID: in.ProviderID,
		FromNumber: in.From,
		Text:       in.Text,
		ReceivedAt: in.ReceivedAt,
	}

	s.mu.Lock()
	s.msgs[msg.BridgeID] = msg
	n := len(s.msgs)
	s.mu.Unlock()

	metrics.InboxMessages.Set(float64(n))
	s.log.Info("SMSReceived", logger.Fields{BridgeID: msg.BridgeID.String(), ProviderID: msg.ProviderID.String()},
		fmt.Sprintf("from %s contact %q", in.From, in.Label))

	s.persist()
	return msg
}

// List returns all held messages, oldest first.
func (s *Store) List() []model.ReceivedMessage {
	s.mu.RLock()
	out := make([]model.ReceivedMessage, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].BridgeID.String() < out[j].BridgeID.String()
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})

	if len(out) == 0 {
		s.quietMu.Lock()
		if time.Since(s.lastQuietLog) > quietLogEvery {
			s.log.Info("NoMessages", logger.Fields{}, "no messages for a whole hour")
			s.lastQuietLog = time.Now()
		}
		s.quietMu.Unlock()
	}
	return out
}

func (s *Store) Get(id model.BridgeID) (model.ReceivedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return model.ReceivedMessage{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// Delete removes a message and persists the mailbox.
func (s *Store) Delete(id model.BridgeID) error {
	s.mu.Lock()
	m, ok := s.msgs[id]
	if ok {
		delete(s.msgs, id)
	}
	n := len(s.msgs)
	s.mu.Unlock()

	if !ok {
		s.log.Info("MessageDeleteFailed", logger.Fields{BridgeID: id.String()}, "message not found")
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	metrics.InboxMessages.Set(float64(n))
	s.log.Info("MessageDeleted", logger.Fields{BridgeID: id.String(), ProviderID: m.ProviderID.String()}, "removed from mailbox")
	s.persist()
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// persist writes the full snapshot. The file mutex serialises writers; the
// snapshot is taken inside it so the last writer always saves the newest state.
func (s *Store) persist() {
	if s.path == "" {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.save(); err != nil {
		s.log.Error("SaveReceivedMessagesFailed", logger.Fields{}, err.Error())
	}
}

func (s *Store) save() error {
	s.mu.RLock()
	msgs := make([]model.ReceivedMessage, 0, len(s.msgs))
	for _, m := range s.msgs {
		msgs = append(msgs, m)
	}
	s.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].BridgeID.String() < msgs[j].BridgeID.String() })

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
