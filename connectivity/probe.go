package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Probe is a Monitor that decides connectivity by polling an HTTP
// endpoint. Used where no platform reachability signal exists, such as
// the CLI. Any HTTP response counts as online, including errors; only
// transport failure counts as offline.
type Probe struct {
	manual   *Manual
	client   *http.Client
	url      string
	interval time.Duration
}

type ProbeOption func(*Probe)

// WithInterval sets the polling interval
func WithInterval(interval time.Duration) ProbeOption {
	return func(p *Probe) {
		p.interval = interval
	}
}

// WithHTTPClient overrides the probe's HTTP client
func WithHTTPClient(client *http.Client) ProbeOption {
	return func(p *Probe) {
		p.client = client
	}
}

// NewProbe creates a Probe against the given URL. The probe assumes
// online until the first poll says otherwise: starting pessimistic
// would queue every request made before the first poll completes.
func NewProbe(url string, opts ...ProbeOption) *Probe {
	p := &Probe{
		manual:   NewManual(true),
		client:   &http.Client{Timeout: defaultProbeTimeout},
		url:      url,
		interval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Online returns the result of the most recent poll
func (p *Probe) Online() bool {
	return p.manual.Online()
}

// Events returns the transition channel
func (p *Probe) Events() <-chan bool {
	return p.manual.Events()
}

// Run polls until ctx is cancelled
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Probe) poll(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		log.Err(err).Str("url", p.url).Msg("connectivity probe misconfigured")
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.manual.Set(false)
		return
	}
	resp.Body.Close()
	p.manual.Set(true)
}
