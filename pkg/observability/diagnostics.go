package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"

	diagnosticsReadHeaderTimeout = 10 * time.Second
	diagnosticsShutdownTimeout   = 5 * time.Second
)

// ReadyCheck reports whether a subsystem is usable. A nil error means ready.
type ReadyCheck func(ctx context.Context) error

// HealthHandler serves liveness at /healthz. It always answers {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, healthStatusOK, "")
	})
}

// ReadyHandler serves readiness at /readyz. The first failing check answers
// 503 with its error.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		for _, check := range checks {
			err := check(hr.Context())
			if err != nil {
				writeHealth(rw, http.StatusServiceUnavailable, healthStatusUnavailable, err.Error())

				return
			}
		}

		writeHealth(rw, http.StatusOK, healthStatusOK, "")
	})
}

func writeHealth(rw http.ResponseWriter, code int, status, detail string) {
	body := map[string]string{"status": status}
	if detail != "" {
		body["error"] = detail
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	// The status line is already out; a failed body write has no recovery.
	_ = json.NewEncoder(rw).Encode(body)
}

// DiagnosticsServer exposes /healthz, /readyz, and /metrics for the watch daemon.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewDiagnosticsServer listens on addr. Metrics may be nil, in which case
// /metrics is not served. Call Serve to start answering requests.
func NewDiagnosticsServer(addr string, metrics http.Handler, checks ...ReadyCheck) (*DiagnosticsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/healthz", HealthHandler())
	mux.Handle("/readyz", ReadyHandler(checks...))

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	return &DiagnosticsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: diagnosticsReadHeaderTimeout},
		listener: listener,
	}, nil
}

// Addr returns the address the server is listening on.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Serve answers requests until ctx is done, then shuts the server down.
func (d *DiagnosticsServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- d.server.Serve(d.listener)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("diagnostics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsShutdownTimeout)
	defer cancel()

	err := d.server.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}

	return nil
}
