// Package lifecycle hosts the auth coordinator mounted once per app
// run. It bootstraps the persisted session, keeps tokens fresh ahead
// of expiry, drains deferred work when connectivity returns, and turns
// auth-callback deep links into completed sign-ins.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Jai-Dhiman/capture-sub001/applife"
	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/connectivity"
	"github.com/Jai-Dhiman/capture-sub001/deeplink"
	"github.com/Jai-Dhiman/capture-sub001/offline"
	"github.com/Jai-Dhiman/capture-sub001/session"
)

const (
	defaultMinSplash   = 2 * time.Second
	defaultLeeway      = 5 * time.Minute
	defaultBackoffBase = 2 * time.Second
	defaultMaxRetries  = 3
)

// Sessions is the slice of the session store the controller drives
type Sessions interface {
	Snapshot() session.Snapshot
	AddListener(fn func(session.Snapshot)) func()
	CheckInitialSession(ctx context.Context) error
	RefreshSession(ctx context.Context) (*authclient.Session, error)
	ClearAuth(ctx context.Context) error
	SetAuthData(ctx context.Context, result *authclient.AuthResult) error
}

// CallbackHandler completes OAuth sign-ins arriving as deep links
type CallbackHandler interface {
	CallbackURL(rawURL string) bool
	HandleCallback(ctx context.Context, rawURL string) (*authclient.AuthResult, error)
}

// AppLife is the foreground/background signal the controller consumes
type AppLife interface {
	State() applife.State
	Events() <-chan applife.State
}

// Deps collects the external signals the controller subscribes to.
// Connectivity is required; the rest may be nil, disabling the
// corresponding concern.
type Deps struct {
	Connectivity connectivity.Monitor
	AppLife      AppLife
	DeepLinks    deeplink.Source
	OAuth        CallbackHandler
}

// Controller coordinates the auth session across the app's lifetime.
// Mount one instance and keep Run alive for the whole run.
type Controller struct {
	store Sessions
	queue *offline.Queue
	deps  Deps

	minSplash   time.Duration
	leeway      time.Duration
	backoffBase time.Duration
	maxRetries  int
	decide      DecisionFunc
	purgeCache  func(ctx context.Context) error

	alerts  chan Alert
	ready   chan struct{}
	stateCh chan struct{}

	mu      sync.Mutex
	retries int

	// loop-owned, never touched off the event loop
	lastScheduled string
}

type Option func(*Controller)

// WithMinSplash sets the minimum time Ready is held back, so a fast
// bootstrap does not flash the splash screen away
func WithMinSplash(d time.Duration) Option {
	return func(c *Controller) {
		c.minSplash = d
	}
}

// WithLeeway sets how far before expiry the scheduled refresh fires
func WithLeeway(d time.Duration) Option {
	return func(c *Controller) {
		c.leeway = d
	}
}

// WithBackoffBase sets the first retry delay; later retries double it
func WithBackoffBase(d time.Duration) Option {
	return func(c *Controller) {
		c.backoffBase = d
	}
}

// WithMaxRetries caps refresh retries before the user is asked
func WithMaxRetries(n int) Option {
	return func(c *Controller) {
		c.maxRetries = n
	}
}

// WithDecisionFunc installs the blocking retry-or-logout prompt
func WithDecisionFunc(fn DecisionFunc) Option {
	return func(c *Controller) {
		c.decide = fn
	}
}

// WithCachePurge installs a hook run when the user chooses logout
// after retry exhaustion
func WithCachePurge(fn func(ctx context.Context) error) Option {
	return func(c *Controller) {
		c.purgeCache = fn
	}
}

// New creates a Controller over the session store and offline queue.
// queue may be nil when the app defers nothing.
func New(store Sessions, queue *offline.Queue, deps Deps, options ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("[New] session store is required")
	}
	if deps.Connectivity == nil {
		return nil, errors.New("[New] connectivity monitor is required")
	}

	c := &Controller{
		store:       store,
		queue:       queue,
		deps:        deps,
		minSplash:   defaultMinSplash,
		leeway:      defaultLeeway,
		backoffBase: defaultBackoffBase,
		maxRetries:  defaultMaxRetries,
		alerts:      make(chan Alert, 16),
		ready:       make(chan struct{}),
		stateCh:     make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Ready is closed once bootstrap has finished and the minimum splash
// time has elapsed, whichever comes later
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Alerts delivers non-blocking user notices. A stalled consumer loses
// the oldest pending alert, never the newest.
func (c *Controller) Alerts() <-chan Alert {
	return c.alerts
}

// Run starts the bootstrap and the event loop and blocks until ctx is
// cancelled
func (c *Controller) Run(ctx context.Context) error {
	unsubscribe := c.store.AddListener(func(session.Snapshot) {
		select {
		case c.stateCh <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.bootstrap(ctx) })
	g.Go(func() error { return c.loop(ctx) })
	return g.Wait()
}

// bootstrap restores persisted auth and gates Ready behind the splash
// minimum. Bootstrap failure is not fatal to the controller; the
// session store has already settled on a safe state.
func (c *Controller) bootstrap(ctx context.Context) error {
	started := time.Now()
	if err := c.store.CheckInitialSession(ctx); err != nil {
		log.Warn().Err(err).Msg("session bootstrap failed")
	}

	if remaining := c.minSplash - time.Since(started); remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
		}
	}
	close(c.ready)
	return nil
}

func (c *Controller) loop(ctx context.Context) error {
	refreshTimer := time.NewTimer(time.Hour)
	stopTimer(refreshTimer)
	defer stopTimer(refreshTimer)

	var lifeEvents <-chan applife.State
	if c.deps.AppLife != nil {
		lifeEvents = c.deps.AppLife.Events()
	}
	var linkEvents <-chan string
	if c.deps.DeepLinks != nil {
		linkEvents = c.deps.DeepLinks.URLs()

		if initial, err := c.deps.DeepLinks.Initial(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to read launch URL")
		} else if initial != "" {
			c.handleLink(ctx, initial)
		}
	}

	c.rescheduleIfChanged(refreshTimer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case online := <-c.deps.Connectivity.Events():
			if !online {
				stopTimer(refreshTimer)
				continue
			}
			if c.queue != nil {
				go c.drainQueue(ctx)
			}
			c.setRetries(0)
			c.lastScheduled = ""
			c.rescheduleIfChanged(refreshTimer)

		case state := <-lifeEvents:
			if state != applife.StateActive {
				continue
			}
			// User presence counts as the explicit retry action when
			// retries were exhausted without a decision handler.
			c.setRetries(0)
			c.maybeRefresh(ctx, refreshTimer)

		case url := <-linkEvents:
			c.handleLink(ctx, url)

		case <-c.stateCh:
			c.rescheduleIfChanged(refreshTimer)

		case <-refreshTimer.C:
			c.maybeRefresh(ctx, refreshTimer)
		}
	}
}

// maybeRefresh refreshes if a session exists and the device is
// online. Overlap with another trigger is resolved by the store's
// in-flight guard; this caller's attempt is simply dropped.
func (c *Controller) maybeRefresh(ctx context.Context, timer *time.Timer) {
	if !c.deps.Connectivity.Online() {
		return
	}
	if c.store.Snapshot().Session == nil {
		return
	}

	_, err := c.store.RefreshSession(ctx)
	switch {
	case err == nil:
		c.setRetries(0)
	case errors.Is(err, session.ErrRefreshInFlight):
	case authclient.IsAuthInvalid(err):
		c.alert(SeverityInfo, "Your session has ended. Please sign in again.")
	default:
		c.retryAfterFailure(ctx, timer)
	}
}

// retryAfterFailure schedules the next attempt with exponential
// backoff, asking the user once the retry cap is reached
func (c *Controller) retryAfterFailure(ctx context.Context, timer *time.Timer) {
	c.mu.Lock()
	c.retries++
	attempt := c.retries
	c.mu.Unlock()

	if attempt <= c.maxRetries {
		delay := c.backoffBase << (attempt - 1)
		log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("session refresh failed, retrying")
		resetTimer(timer, delay)
		return
	}

	if c.decide == nil {
		c.alert(SeverityError, "Could not refresh your session. Check your connection and try again.")
		return
	}

	switch c.decide(ctx) {
	case DecisionRetry:
		c.setRetries(0)
		resetTimer(timer, 0)
	case DecisionLogout:
		if err := c.store.ClearAuth(ctx); err != nil {
			log.Err(err).Msg("failed to clear auth after logout decision")
		}
		if c.purgeCache != nil {
			if err := c.purgeCache(ctx); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			}
		}
	}
}

// rescheduleIfChanged re-arms the proactive refresh timer when the
// session's identity has changed since the last arming. The timer has
// a single owner, so a superseded schedule can never fire.
func (c *Controller) rescheduleIfChanged(timer *time.Timer) {
	snap := c.store.Snapshot()
	key := scheduleKey(snap)
	if key == c.lastScheduled {
		return
	}
	c.lastScheduled = key

	if snap.Session == nil || snap.Session.ExpiresAt == 0 || !c.deps.Connectivity.Online() {
		stopTimer(timer)
		return
	}

	c.setRetries(0)
	delay := time.Until(snap.Session.ExpiryTime()) - c.leeway
	if delay < 0 {
		delay = 0
	}
	log.Debug().Dur("delay", delay).Msg("scheduled session refresh")
	resetTimer(timer, delay)
}

func (c *Controller) handleLink(ctx context.Context, rawURL string) {
	if c.deps.OAuth == nil || !c.deps.OAuth.CallbackURL(rawURL) {
		log.Debug().Str("url", rawURL).Msg("ignoring non-auth deep link")
		return
	}

	result, err := c.deps.OAuth.HandleCallback(ctx, rawURL)
	if err != nil {
		if authclient.IsCancelled(err) {
			log.Debug().Msg("sign-in callback reported cancellation")
			return
		}
		log.Warn().Err(err).Msg("auth callback failed")
		c.alert(SeverityError, "Sign-in could not be completed. Please try again.")
		return
	}
	if err := c.store.SetAuthData(ctx, result); err != nil {
		log.Err(err).Msg("failed to apply auth callback result")
	}
}

func (c *Controller) drainQueue(ctx context.Context) {
	executed, failed := c.queue.Drain(ctx)
	if executed > 0 || failed > 0 {
		log.Info().Int("executed", executed).Int("failed", failed).Msg("drained offline queue")
	}
}

func (c *Controller) alert(severity Severity, message string) {
	a := Alert{Severity: severity, Message: message}
	select {
	case c.alerts <- a:
	default:
		select {
		case <-c.alerts:
		default:
		}
		c.alerts <- a
	}
}

func (c *Controller) setRetries(n int) {
	c.mu.Lock()
	c.retries = n
	c.mu.Unlock()
}

func scheduleKey(snap session.Snapshot) string {
	if snap.Session == nil {
		return ""
	}
	return snap.Session.AccessToken + "|" + snap.Session.ExpiryTime().UTC().Format(time.RFC3339Nano)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
