package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/provider/registry"
	"github.com/jmehdipour/sms-bridge/internal/status"
	"github.com/jmehdipour/sms-bridge/internal/webhook"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the vendor webhook subscription",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Create or update the vendor webhook to match config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			// the tracker is only needed to build the provider
			tracker := status.NewTracker(status.Config{Timeout: cfg.Status.Timeout}, nil)
			defer tracker.Close()

			p, err := registry.New(cfg, registry.Deps{Tracker: tracker})
			if err != nil {
				return err
			}
			api, ok := p.(webhook.API)
			if !ok {
				return fmt.Errorf("%s has no webhook API", p.Name())
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Webhook.StartupTimeout)
			defer cancel()

			desired := webhook.Desired(cfg, registry.CallbackKey(cfg, cfg.SMS.Provider))
			action := webhook.NewReconciler(api, logger.For(p.Name(), nil)).Ensure(ctx, desired)
			fmt.Fprintf(cmd.OutOrStdout(), "webhook %s: %s\n", desired.URL, action)
			if action == webhook.Failed {
				return fmt.Errorf("webhook sync failed, see log")
			}
			return nil
		},
	})
	return cmd
}
