package deeplink

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCallbackPath is where OAuth providers redirect when the
	// loopback listener is the registered redirect target
	DefaultCallbackPath = "/auth/callback"

	shutdownGrace = 5 * time.Second
)

const callbackPage = `<!DOCTYPE html>
<html>
<head><title>Capture</title></head>
<body>
<p>Sign-in received. You can close this window and return to the app.</p>
</body>
</html>`

// Loopback is a Source backed by a 127.0.0.1 HTTP listener. OAuth
// providers that cannot redirect into a custom URL scheme redirect
// here instead, and each hit on the callback path becomes a URL event.
type Loopback struct {
	addr string
	path string
	urls chan string
}

type LoopbackOption func(*Loopback)

// WithCallbackPath overrides the path watched for redirects
func WithCallbackPath(path string) LoopbackOption {
	return func(l *Loopback) {
		l.path = path
	}
}

// NewLoopback creates a listener source bound to addr, which must be a
// loopback host:port
func NewLoopback(addr string, opts ...LoopbackOption) (*Loopback, error) {
	if addr == "" {
		return nil, errors.New("[NewLoopback] addr is required")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Wrap(err, "[NewLoopback] invalid addr")
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return nil, errors.Errorf("[NewLoopback] addr %q is not loopback; redirect listeners must not be reachable off-device", addr)
	}

	l := &Loopback{
		addr: addr,
		path: DefaultCallbackPath,
		urls: make(chan string, 8),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Initial always returns empty: a process with a live listener was not
// launched by a redirect
func (l *Loopback) Initial(ctx context.Context) (string, error) {
	return "", nil
}

// URLs returns the callback channel
func (l *Loopback) URLs() <-chan string {
	return l.urls
}

// RedirectURI returns the URI to register with the authorization
// server
func (l *Loopback) RedirectURI() string {
	return "http://" + l.addr + l.path
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (l *Loopback) Run(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc(l.path, l.handleCallback).Methods(http.MethodGet, http.MethodPost)

	server := &http.Server{
		Addr:              l.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "[Loopback Run] listener failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("loopback listener shutdown was not clean")
	}
	return ctx.Err()
}

// handleCallback turns a redirect hit into a URL event. Form parsing
// supports both query redirects and form_post response mode.
func (l *Loopback) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed callback", http.StatusBadRequest)
		return
	}

	url := l.RedirectURI()
	if encoded := r.Form.Encode(); encoded != "" {
		url += "?" + encoded
	}

	select {
	case l.urls <- url:
	default:
		log.Warn().Msg("dropping auth callback, no consumer draining the loopback listener")
		http.Error(w, "callback not consumed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(callbackPage)); err != nil {
		log.Debug().Err(err).Msg("failed to write callback page")
	}
}
