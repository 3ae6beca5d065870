package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(registrationsTotal, avatarUploadsTotal, avatarPreviewsLive) }

var (
	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Account submissions by outcome.",
		},
		[]string{"result"}, // ok | invalid | rejected | error | rate_limited
	)

	avatarUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_uploads_total",
			Help: "Post-registration avatar uploads by outcome.",
		},
		[]string{"result"}, // ok | failed
	)

	avatarPreviewsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avatar_previews_live",
			Help: "Pending avatar previews not yet released.",
		},
	)
)

func IncRegistration(result string) {
	registrationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncAvatarUpload(result string) {
	avatarUploadsTotal.WithLabelValues(norm(result)).Inc()
}

func SetAvatarPreviewsLive(n int64) {
	avatarPreviewsLive.Set(float64(n))
}
