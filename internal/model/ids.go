package model

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var ErrInvalidBridgeID = errors.New("invalid sms bridge id")

// BridgeID is the correlation handle handed to callers. It is the only id
// that ever leaves the gateway.
type BridgeID struct {
	u ulid.ULID
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewBridgeID returns a fresh id. Monotonic entropy keeps ids issued within
// the same millisecond strictly increasing, so they never collide.
func NewBridgeID() BridgeID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return BridgeID{u: ulid.MustNew(ulid.Timestamp(time.Now()), entropy)}
}

// ParseBridgeID parses the 26 character text form.
func ParseBridgeID(s string) (BridgeID, error) {
	u, err := ulid.ParseStrict(strings.TrimSpace(s))
	if err != nil {
		return BridgeID{}, ErrInvalidBridgeID
	}
	return BridgeID{u: u}, nil
}

func (id BridgeID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.u.String()
}

func (id BridgeID) IsZero() bool { return id.u == (ulid.ULID{}) }

// Time is the creation time embedded in the id.
func (id BridgeID) Time() time.Time { return ulid.Time(id.u.Time()) }

func (id BridgeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *BridgeID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = BridgeID{}
		return nil
	}
	parsed, err := ParseBridgeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ProviderID is the vendor's own message id, scoped to one provider.
// The zero value means the vendor has not reported one.
type ProviderID string

const localProviderPrefix = "local-"

// SynthesizeProviderID builds a local id for vendors that never supply one.
func SynthesizeProviderID() ProviderID {
	return ProviderID(localProviderPrefix + uuid.NewString())
}

func (p ProviderID) String() string { return string(p) }

func (p ProviderID) IsZero() bool { return p == "" }

// Synthesized reports whether the id was generated locally.
func (p ProviderID) Synthesized() bool { return strings.HasPrefix(string(p), localProviderPrefix) }
