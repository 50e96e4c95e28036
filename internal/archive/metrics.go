package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	clipsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uvcgrab_clips_resolved_total",
		Help: "Recordings whose metadata resolved to a downloadable clip",
	})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uvcgrab_downloads_total",
		Help: "Clip downloads by terminal outcome",
	}, []string{
		"outcome", // success|failed|skipped
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uvcgrab_download_bytes_total",
		Help: "Bytes of footage committed to the archive",
	})

	downloadsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uvcgrab_downloads_inflight",
		Help: "Clip downloads currently streaming",
	})
)

// InflightDownloads reads the inflight gauge. Test helper; the scrape
// endpoint is the production surface.
func InflightDownloads() float64 {
	var m dto.Metric
	if err := downloadsInflight.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
