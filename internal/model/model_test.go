package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBridgeID_Unique(t *testing.T) {
	seen := make(map[BridgeID]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := NewBridgeID()
		require.False(t, id.IsZero())
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestParseBridgeID(t *testing.T) {
	id := NewBridgeID()

	parsed, err := ParseBridgeID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseBridgeID("not-an-id")
	assert.ErrorIs(t, err, ErrInvalidBridgeID)

	_, err = ParseBridgeID("")
	assert.ErrorIs(t, err, ErrInvalidBridgeID)
}

func TestBridgeID_JSON(t *testing.T) {
	msg := ReceivedMessage{BridgeID: NewBridgeID(), FromNumber: "+6421000000", Text: "hi"}

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(b), msg.BridgeID.String())

	var back ReceivedMessage
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, msg.BridgeID, back.BridgeID)
}

func TestSynthesizeProviderID(t *testing.T) {
	a := SynthesizeProviderID()
	b := SynthesizeProviderID()
	assert.NotEqual(t, a, b)
	assert.True(t, a.Synthesized())
	assert.False(t, ProviderID("12345").Synthesized())
}

func TestSendRequest_Validate(t *testing.T) {
	cases := []struct {
		name string
		req  SendRequest
		want error
	}{
		{"ok", SendRequest{To: "+6421467784", Body: "hello"}, nil},
		{"comma", SendRequest{To: "+1,+2", Body: "hello"}, ErrMultiRecipient},
		{"semicolon", SendRequest{To: "+1;+2", Body: "hello"}, ErrMultiRecipient},
		{"empty to", SendRequest{To: "  ", Body: "hello"}, ErrEmptyDestination},
		{"empty body", SendRequest{To: "+1", Body: ""}, ErrEmptyBody},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMessageStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusUnknown.Terminal())
	assert.True(t, StatusTimedOut.Terminal())
	assert.False(t, MessageStatus("sent").Terminal())
}

func TestWebhookDescriptor_Equal(t *testing.T) {
	base := WebhookDescriptor{
		ID:             "wh_1",
		URL:            "https://bridge.example/smsgateway/webhooks/etxt/inbound",
		Method:         "POST",
		Encoding:       "json",
		Events:         []string{"inbound", "status"},
		Headers:        map[string]string{"X-etxt-Callback-Key": "secret"},
		Template:       `{"id":"$id"}`,
		ConnectTimeout: 5,
		ReadTimeout:    10,
		RetryCount:     3,
	}

	same := base
	same.ID = "other"
	same.Method = "post"
	same.Events = []string{"status", "inbound", "status"}
	same.Headers = map[string]string{"x-ETXT-callback-key": "secret"}
	assert.True(t, base.Equal(same))

	diffHeader := base
	diffHeader.Headers = map[string]string{"X-etxt-Callback-Key": "other"}
	assert.False(t, base.Equal(diffHeader))

	diffEvents := base
	diffEvents.Events = []string{"inbound"}
	assert.False(t, base.Equal(diffEvents))

	diffRetry := base
	diffRetry.RetryCount = 4
	assert.False(t, base.Equal(diffRetry))

	diffTemplate := base
	diffTemplate.Template = ""
	assert.False(t, base.Equal(diffTemplate))
}
