package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationsIssued counts invitation issuance attempts by result (success|failure).
	InvitationsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_invitations_issued_total",
			Help: "Total number of invitation issuance attempts",
		},
		[]string{"result"},
	)

	// InvitationsRedeemed counts redemption attempts by outcome (accepted|consumed|expired|invalid).
	InvitationsRedeemed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_invitations_redeemed_total",
			Help: "Total number of invitation redemption attempts",
		},
		[]string{"outcome"},
	)

	// InvitationsCancelled counts administrative cancellations.
	InvitationsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castellan_invitations_cancelled_total",
			Help: "Total number of cancelled invitations",
		},
	)

	// RoleAssignments counts ledger appends by source (invite|direct|bulk).
	RoleAssignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_role_assignments_total",
			Help: "Total number of role assignments recorded in the ledger",
		},
		[]string{"source"},
	)

	// PermissionChecks counts authorization decisions by permission and outcome
	// (allowed|denied).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "castellan_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
