package uvc

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uvcgrab_controller_requests_total",
		Help: "Controller API requests by operation and HTTP status code",
	}, []string{
		"operation", // login|logout|bootstrap|recording.search|recording.detail|recording.download
		"code",      // HTTP status, or "error" when no response arrived
	})
)

func observeRequest(op string, status int) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	apiRequestsTotal.WithLabelValues(op, code).Inc()
}
