package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payloadbuilder/pkg/logging"
)

// Handler returns the HTTP handler serving /metrics and /health.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Exporter serves the metrics endpoint in the background.
type Exporter struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Serve starts an exporter on addr. Use ":0" to pick a free port.
func (m *Metrics) Serve(addr string) (*Exporter, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	e := &Exporter{
		srv: &http.Server{
			Handler:      m.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		listener: listener,
		done:     make(chan error, 1),
	}

	go func() {
		err := e.srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		e.done <- err
	}()

	logging.WithComponent("metrics").Info("metrics exporter started", "addr", listener.Addr().String())
	return e, nil
}

// Addr returns the address the exporter listens on.
func (e *Exporter) Addr() string {
	return e.listener.Addr().String()
}

// Shutdown stops the exporter and waits for the serve loop to exit.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if err := e.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-e.done
}
