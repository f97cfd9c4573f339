// Package metrics exposes engine counters in Prometheus text format.
//
// Counters are package-level and incremented from the service layer, keeping
// the auction core free of any metrics dependency. MetricsServer serves the
// scrape endpoint on its own listener so operational traffic never shares a
// port with the API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

var (
	// AuctionsCreated counts successful listings.
	AuctionsCreated = vmetrics.NewCounter("auctions_created_total")

	// BidsPlaced counts accepted bids, top-ups included.
	BidsPlaced = vmetrics.NewCounter("bids_placed_total")

	// AuctionsSettled counts completed settlements, unsold ones included.
	AuctionsSettled = vmetrics.NewCounter("auctions_settled_total")

	// RefundsIssued counts refunds paid out during settlement or retry.
	RefundsIssued = vmetrics.NewCounter("refunds_issued_total")

	// RefundsFailed counts refunds the payment ledger rejected.
	RefundsFailed = vmetrics.NewCounter("refunds_failed_total")

	// RequestsRejected counts API requests refused before reaching the engine.
	RequestsRejected = vmetrics.NewCounter("requests_rejected_total")
)

// MetricsServer serves the /metrics scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given service name and listen address.
// An empty address yields a server that never starts; callers can hold one
// unconditionally.
func New(name, addr string) (*MetricsServer, error) {
	if addr == "" {
		return &MetricsServer{}, nil
	}

	vmetrics.NewGauge(fmt.Sprintf(`up{service=%q}`, name), func() float64 { return 1 })

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
