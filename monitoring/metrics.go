// Package monitoring exposes run metrics via Prometheus. The collectors
// are always registered and cheap to update; an HTTP endpoint is only
// started when a listen address is configured.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paysim"

var (
	// PaymentsTotal counts finished payments by verdict.
	PaymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Finished payments by verdict.",
	}, []string{"verdict"})

	// HTLCAttemptsTotal counts HTLC attempts across all payments.
	HTLCAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "htlc_attempts_total",
		Help:      "HTLC attempts across all payments.",
	})

	// PaymentFeesMsat observes the fee of each successful payment.
	PaymentFeesMsat = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_fees_msat",
		Help:      "Fees paid by successful payments, in msat.",
		Buckets:   prometheus.ExponentialBuckets(1, 10, 10),
	})

	// PathLength observes the longest path attempted per payment.
	PathLength = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_path_length",
		Help:      "Longest attempted path per payment, in hops.",
		Buckets:   prometheus.LinearBuckets(1, 1, 20),
	})
)

func init() {
	prometheus.MustRegister(
		PaymentsTotal, HTLCAttemptsTotal, PaymentFeesMsat, PathLength,
	)
}

// ObservePayment records one finished payment.
func ObservePayment(verdict string, attempts, pathLen int, feeMsat uint64,
	succeeded bool) {

	PaymentsTotal.WithLabelValues(verdict).Inc()
	HTLCAttemptsTotal.Add(float64(attempts))
	PathLength.Observe(float64(pathLen))
	if succeeded {
		PaymentFeesMsat.Observe(float64(feeMsat))
	}
}

// Serve starts the metrics endpoint on the given address. It returns
// immediately; serving errors surface through the returned channel.
func Serve(addr string) <-chan error {
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	return errChan
}
