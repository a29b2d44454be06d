package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests      prometheus.Counter
	ChatFailures      prometheus.Counter
	AssistantRebuilds prometheus.Counter
	AssistantReuses   prometheus.Counter
	FilesUploaded     prometheus.Counter
	RunTimeouts       prometheus.Counter
	TokensUsed        prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "studyhub",
				Name:      "chat_requests_total",
				Help:      "Total inbound chat messages handled",
			}),
			ChatFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "studyhub",
				Name:      "chat_failures_total",
				Help:      "Total chat messages that failed fatally",
			}),
			AssistantRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "studyhub",
				Name:      "assistant_rebuilds_total",
				Help:      "Total provider assistants built from scratch",
			}),
			AssistantReuses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "studyhub",
				Name:      "assistant_reuses_total",
				Help:      "Total cached provider assistants reused",
			}),
			FilesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "studyhub",
				Name:      "reference_files_uploaded_total",
				Help:      "Total reference files uploaded to the provider",
			}),
			RunTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "studyhub",
				Name:      "run_timeouts_total",
				Help:      "Total assistant runs abandoned on timeout",
			}),
			TokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "studyhub",
				Name:      "tokens_used_total",
				Help:      "Total provider tokens recorded by the usage tracker",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.ChatFailures,
			global.AssistantRebuilds,
			global.AssistantReuses,
			global.FilesUploaded,
			global.RunTimeouts,
			global.TokensUsed,
		)
	})
	return global
}
