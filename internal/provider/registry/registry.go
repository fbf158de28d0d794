// Package registry builds the configured vendor.
package registry

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/provider/diafaan"
	"github.com/jmehdipour/sms-bridge/internal/provider/etxt"
	"github.com/jmehdipour/sms-bridge/internal/provider/justremote"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

// Config names of the supported vendors.
const (
	JustRemotePhone = "justremotephone"
	ETxt            = "etxt"
	Diafaan         = "diafaan"
)

type Deps struct {
	Tracker *status.Tracker
	Inbox   *inbox.Store // ignored by vendors without inbound
	Log     *zap.Logger  // nil uses the global logger
}

func New(cfg config.Config, d Deps) (provider.Provider, error) {
	if d.Tracker == nil {
		return nil, fmt.Errorf("registry: status tracker is required")
	}

	switch strings.ToLower(cfg.SMS.Provider) {
	case JustRemotePhone:
		log := logger.For(justremote.Name, d.Log)
		jr := cfg.JustRemote
		phone := justremote.NewWSPhone(jr.URL, jr.AppName, log)
		session := justremote.NewSession(phone, jr.ReconnectWindow, jr.ReconnectBackoff, log)
		return justremote.New(phone, session, d.Tracker, d.Inbox, log), nil

	case ETxt:
		return etxt.New(etxt.Opts{
			HTTP:     httpOpts(cfg.ETxt),
			SenderID: cfg.ETxt.SenderID,
		}, d.Tracker, d.Inbox, logger.For(etxt.Name, d.Log)), nil

	case Diafaan:
		return diafaan.New(diafaan.Opts{
			HTTP:     httpOpts(cfg.Diafaan),
			SenderID: cfg.Diafaan.SenderID,
		}, d.Tracker, logger.For(diafaan.Name, d.Log)), nil
	}
	return nil, fmt.Errorf("unsupported sms provider: %q", cfg.SMS.Provider)
}

// CallbackKey returns the shared secret a vendor must present on webhook
// calls. Empty means the vendor does not push callbacks.
func CallbackKey(cfg config.Config, name string) string {
	switch strings.ToLower(name) {
	case ETxt:
		return cfg.ETxt.CallbackKey
	case Diafaan:
		return cfg.Diafaan.CallbackKey
	}
	return ""
}

func httpOpts(v config.VendorConfig) provider.HTTPClientOpts {
	return provider.HTTPClientOpts{
		BaseURL:       v.BaseURL,
		Username:      v.Username,
		Password:      v.Password,
		TimeoutMs:     v.TimeoutMs,
		FailThreshold: v.Breaker.FailThreshold,
		OpenForMs:     v.Breaker.OpenForMs,
	}
}
