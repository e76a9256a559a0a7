package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	didResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcsync_did_resolutions_total",
			Help: "DID resolution attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	statusListUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcsync_statuslist_upserts_total",
			Help: "Status list upserts by outcome (created, updated, unchanged).",
		},
		[]string{"outcome"},
	)

	registrationConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcsync_registration_confirmations_total",
			Help: "Organization registration confirmations by outcome.",
		},
		[]string{"outcome"},
	)
)

// DIDResolved counts a DID resolution attempt.
func DIDResolved(method, outcome string) {
	didResolutions.WithLabelValues(method, outcome).Inc()
}

// StatusListUpserted counts a status list upsert.
func StatusListUpserted(outcome string) {
	statusListUpserts.WithLabelValues(outcome).Inc()
}

// RegistrationConfirmed counts an OTP confirmation attempt.
func RegistrationConfirmed(outcome string) {
	registrationConfirmations.WithLabelValues(outcome).Inc()
}
