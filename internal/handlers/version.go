package handlers

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-ingest/internal/logging"
	"media-ingest/internal/startup"
)

// GetVersion reports the build the server was compiled from.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, startup.GetBuildInfo())
}

// MetricsHandler serves the default Prometheus registry, negotiating
// OpenMetrics when the scraper asks for it.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          promErrorLog{},
	})
}

// promErrorLog sends promhttp errors to the component logger.
type promErrorLog struct{}

func (promErrorLog) Println(v ...interface{}) {
	logging.Error("metrics: %s", fmt.Sprint(v...))
}
