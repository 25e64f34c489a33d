// Package observability provides Prometheus metrics for the gating core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChallengesIssued counts captcha challenges announced to the chat.
	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_challenges_issued_total",
		Help: "Total number of captcha challenges issued",
	})

	// ChallengesResolved counts challenge resolutions by outcome.
	ChallengesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_challenges_resolved_total",
		Help: "Total number of captcha challenges resolved by outcome",
	}, []string{"outcome"})

	// Evictions counts participants removed from the chat by reason.
	Evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_evictions_total",
		Help: "Total number of participants evicted by reason",
	}, []string{"reason"})

	// Promotions counts participants granted full capabilities at the
	// trust threshold.
	Promotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_promotions_total",
		Help: "Total number of participants promoted to full trust",
	})

	// ModerationDecisions counts admin decisions by kind.
	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_moderation_decisions_total",
		Help: "Total number of moderation case decisions by decision",
	}, []string{"decision"})

	// PlatformErrors counts failed messaging-platform API calls by method.
	PlatformErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_platform_errors_total",
		Help: "Total number of messaging platform API errors by method",
	}, []string{"method"})

	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"operation"})

	// UpdatesDispatched counts inbound platform updates by event kind.
	UpdatesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_updates_dispatched_total",
		Help: "Total number of inbound updates dispatched by event kind",
	}, []string{"kind"})
)

// Challenge resolution outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeTimeout   = "timeout"
)
