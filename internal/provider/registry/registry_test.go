package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/provider/diafaan"
	"github.com/jmehdipour/sms-bridge/internal/provider/etxt"
	"github.com/jmehdipour/sms-bridge/internal/provider/justremote"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

func TestNew(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	tr := status.NewTracker(status.Config{Timeout: time.Hour}, nil)
	defer tr.Close()
	d := Deps{Tracker: tr, Inbox: inbox.New(filepath.Join(t.TempDir(), "in.json"), nil)}

	cases := []struct {
		name string
		want string
	}{
		{"justremotephone", justremote.Name},
		{"ETXT", etxt.Name},
		{"diafaan", diafaan.Name},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg.SMS.Provider = tc.name
			p, err := New(cfg, d)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Name())
		})
	}

	cfg.SMS.Provider = "carrier-pigeon"
	_, err = New(cfg, d)
	assert.Error(t, err)

	_, err = New(cfg, Deps{})
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	tr := status.NewTracker(status.Config{Timeout: time.Hour}, nil)
	defer tr.Close()

	cfg.SMS.Provider = ETxt
	p, err := New(cfg, Deps{Tracker: tr})
	require.NoError(t, err)
	_, ok := p.(provider.CallbackReceiver)
	assert.True(t, ok)

	cfg.SMS.Provider = JustRemotePhone
	p, err = New(cfg, Deps{Tracker: tr})
	require.NoError(t, err)
	_, ok = p.(provider.Runner)
	assert.True(t, ok)

	cfg.SMS.Provider = Diafaan
	p, err = New(cfg, Deps{Tracker: tr})
	require.NoError(t, err)
	_, ok = p.(provider.CallbackReceiver)
	assert.False(t, ok)
}

func TestCallbackKey(t *testing.T) {
	cfg := config.Config{}
	cfg.ETxt.CallbackKey = "s3cret"
	assert.Equal(t, "s3cret", CallbackKey(cfg, "eTXT"))
	assert.Empty(t, CallbackKey(cfg, JustRemotePhone))
}
