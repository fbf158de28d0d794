package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsbridge_messages_total",
			Help: "Outbound message lifecycle counter by stage",
		},
		[]string{"stage"}, // queued|rejected|sent|send_failed|cancelled
	)

	StatusResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsbridge_status_resolutions_total",
			Help: "Terminal status transitions by status and source",
		},
		[]string{"status", "source"}, // callback|watchdog|poll
	)

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smsbridge_queue_depth",
		Help: "Messages waiting for the next drain tick",
	})

	DrainSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smsbridge_drain_skipped_total",
		Help: "Ticks skipped because the previous drain was still running",
	})

	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smsbridge_status_pending",
		Help: "Sent messages still waiting for a terminal status",
	})

	InboxMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smsbridge_inbox_messages",
		Help: "Received messages held in the mailbox",
	})

	WebhookReconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsbridge_webhook_reconcile_total",
			Help: "Webhook reconciliation outcomes",
		},
		[]string{"action"}, // created|updated|unchanged|failed
	)

	VendorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsbridge_vendor_requests_total",
			Help: "Outbound vendor calls by provider, operation and result",
		},
		[]string{"provider", "op", "result"},
	)
)

var once sync.Once

// MustRegister registers all collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			MessagesTotal,
			StatusResolutions,
			QueueDepth,
			DrainSkipped,
			InFlight,
			InboxMessages,
			WebhookReconciles,
			VendorRequests,
		)
	})
}
