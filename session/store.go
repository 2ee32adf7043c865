package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/securestore"
)

const (
	defaultLeeway      = 5 * time.Minute
	defaultDormancyMax = 30 * 24 * time.Hour
)

var (
	// ErrRefreshInFlight is returned when a refresh is requested while
	// one is already running. The caller's request is dropped, not
	// queued; the running refresh serves everyone.
	ErrRefreshInFlight = errors.New("session refresh already in flight")

	// ErrInvalidTransition is returned by SetStage for moves outside
	// the transition table
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// API is the slice of the auth backend the store drives
type API interface {
	Refresh(ctx context.Context, refreshToken string) (*authclient.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accessToken string) (*authclient.MeResult, error)
}

// Keeper persists the auth record between launches
type Keeper interface {
	Save(ctx context.Context, record securestore.Record) error
	Load(ctx context.Context) (*securestore.Record, error)
	Clear(ctx context.Context) error
}

// Snapshot is an immutable copy of the store's state
type Snapshot struct {
	User      *authclient.User
	Session   *authclient.Session
	Stage     Stage
	Status    Status
	LastError string
}

// Authenticated reports whether a session is held, regardless of stage
func (s Snapshot) Authenticated() bool {
	return s.Session != nil
}

// Store owns the authentication state: the current user, session
// tokens, lifecycle stage, and action status. Every mutation is atomic
// and followed by one persistence write and one listener notification.
type Store struct {
	api    API
	keeper Keeper

	mu         sync.Mutex
	user       *authclient.User
	session    *authclient.Session
	stage      Stage
	status     Status
	lastError  string
	refreshing bool

	listenerMu sync.Mutex
	listeners  map[int]func(Snapshot)
	nextID     int

	leeway      time.Duration
	dormancyMax time.Duration
	nowTime     func() time.Time
}

type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithLeeway sets how far before expiry a session counts as expiring
func WithLeeway(leeway time.Duration) StoreOption {
	return func(s *Store) {
		s.leeway = leeway
	}
}

// WithDormancyLimit sets how long past expiry a stored session may
// still be revived by refresh
func WithDormancyLimit(limit time.Duration) StoreOption {
	return func(s *Store) {
		s.dormancyMax = limit
	}
}

// NewStore initializes a session store with required dependencies.
// Optional configuration can be provided via options (e.g. WithNowTime
// for testing).
func NewStore(api API, keeper Keeper, options ...StoreOption) (*Store, error) {
	if api == nil {
		return nil, errors.New("[NewStore] api is required")
	}
	if keeper == nil {
		return nil, errors.New("[NewStore] keeper is required")
	}

	store := &Store{
		api:         api,
		keeper:      keeper,
		stage:       StageUnauthenticated,
		status:      StatusIdle,
		listeners:   make(map[int]func(Snapshot)),
		leeway:      defaultLeeway,
		dormancyMax: defaultDormancyMax,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(store)
	}
	return store, nil
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AddListener registers fn to run after every state change. The
// returned function removes the listener.
func (s *Store) AddListener(fn func(Snapshot)) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

// SetAuthData installs the result of a successful authentication and
// derives the lifecycle stage from its onboarding flags
func (s *Store) SetAuthData(ctx context.Context, result *authclient.AuthResult) error {
	if result == nil {
		return errors.New("[SetAuthData] result is required")
	}

	s.mu.Lock()
	snap := s.applyAuthDataLocked(ctx, result)
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// ClearAuth signs out: a best-effort remote revocation followed by an
// unconditional local reset. Remote failure never blocks the reset.
func (s *Store) ClearAuth(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := ""
	if s.session != nil {
		refreshToken = s.session.RefreshToken
	}
	s.mu.Unlock()

	if refreshToken != "" {
		if err := s.api.Logout(ctx, refreshToken); err != nil {
			log.Warn().Err(err).Msg("remote logout failed, clearing local state anyway")
		}
	}

	s.mu.Lock()
	s.user = nil
	s.session = nil
	s.stage = StageUnauthenticated
	s.status = StatusSuccess
	s.lastError = ""
	s.persistLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// RefreshSession exchanges the current refresh token for a new session.
// Concurrent calls are dropped with ErrRefreshInFlight. A missing
// refresh token clears auth instead of erroring: there is nothing left
// to refresh.
func (s *Store) RefreshSession(ctx context.Context) (*authclient.Session, error) {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil, ErrRefreshInFlight
	}
	refreshToken := ""
	if s.session != nil {
		refreshToken = s.session.RefreshToken
	}
	if refreshToken == "" {
		s.mu.Unlock()
		if err := s.ClearAuth(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	s.refreshing = true
	s.status = StatusPending
	pending := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(pending)

	result, err := s.api.Refresh(ctx, refreshToken)

	if err != nil {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()

		if authclient.IsAuthInvalid(err) {
			if clearErr := s.ClearAuth(ctx); clearErr != nil {
				log.Err(clearErr).Msg("failed to clear auth after invalidation")
			}
			return nil, errors.Wrap(err, "[RefreshSession] session invalidated")
		}

		s.mu.Lock()
		s.status = StatusError
		s.lastError = err.Error()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil, errors.Wrap(err, "[RefreshSession] refresh failed")
	}

	s.mu.Lock()
	s.refreshing = false
	if s.session == nil || s.session.RefreshToken != refreshToken {
		// Auth was cleared or replaced while the request was in
		// flight. The fresh tokens are dropped; a signed-out device
		// must stay signed out.
		s.mu.Unlock()
		log.Warn().Msg("discarding refresh result, session changed mid-flight")
		return nil, nil
	}
	if result.Session.ExpiresAt < s.session.ExpiresAt {
		log.Warn().
			Int64("old_expires_at", s.session.ExpiresAt).
			Int64("new_expires_at", result.Session.ExpiresAt).
			Msg("refreshed session expires earlier than its predecessor")
	}
	snap := s.applyAuthDataLocked(ctx, result)
	s.mu.Unlock()
	s.notify(snap)

	newSession := result.Session
	return &newSession, nil
}

// CheckInitialSession restores persisted auth state at cold start. A
// valid session is confirmed with the backend, an expiring one is
// refreshed, and anything unusable is cleared.
func (s *Store) CheckInitialSession(ctx context.Context) error {
	record, err := s.keeper.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted auth state, starting signed out")
		record = nil
	}

	if record == nil || record.Session == nil ||
		(record.Session.AccessToken == "" && record.Session.RefreshToken == "") {
		s.mu.Lock()
		s.user = nil
		s.session = nil
		s.stage = StageUnauthenticated
		s.status = StatusSuccess
		s.lastError = ""
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil
	}

	s.mu.Lock()
	s.user = record.User
	s.session = record.Session
	s.stage = StageUnauthenticated
	s.status = StatusPending
	sess := *record.Session
	now := s.nowTime()
	s.mu.Unlock()

	// A session long past expiry is not revived even if its refresh
	// token might still work; the account re-authenticates.
	if sess.ExpiresAt > 0 && now.Sub(sess.ExpiryTime()) > s.dormancyMax {
		log.Info().Msg("stored session dormant past limit, forcing sign-in")
		return s.ClearAuth(ctx)
	}

	if sess.ExpiresWithin(s.leeway, now) {
		return s.bootstrapRefresh(ctx)
	}

	me, err := s.api.Me(ctx, sess.AccessToken)
	if err == nil && me != nil {
		s.mu.Lock()
		user := me.User
		s.user = &user
		s.stage = DeriveStage(me.SecuritySetupRequired, me.ProfileExists)
		s.status = StatusSuccess
		s.lastError = ""
		s.persistLocked(ctx)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil
	}
	log.Debug().Err(err).Msg("whoami probe failed, falling back to refresh")
	return s.bootstrapRefresh(ctx)
}

// SetStage moves the lifecycle stage directly, for completions that
// happen outside this store (profile created, security enrolled).
// Moves outside the transition table are rejected.
func (s *Store) SetStage(ctx context.Context, stage Stage) error {
	if !stage.valid() {
		return errors.Wrapf(ErrInvalidTransition, "unknown stage %q", stage)
	}

	s.mu.Lock()
	if stage == s.stage {
		s.mu.Unlock()
		return nil
	}
	if !s.stage.CanTransitionTo(stage) {
		current := s.stage
		s.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", current, stage)
	}
	s.stage = stage
	s.persistLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// bootstrapRefresh wraps RefreshSession with cold-start failure policy:
// network failures keep the stored session for a later retry, auth
// invalidation has already cleared it, and anything else clears now.
func (s *Store) bootstrapRefresh(ctx context.Context) error {
	_, err := s.RefreshSession(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRefreshInFlight):
		return nil
	case authclient.IsAuthInvalid(err):
		return nil
	case authclient.IsNetwork(err):
		return nil
	default:
		return s.ClearAuth(ctx)
	}
}

// applyAuthDataLocked installs an auth result and persists. Caller
// holds mu. Shared by SetAuthData and the refresh success path so the
// resurrect guard has no gap to race through.
func (s *Store) applyAuthDataLocked(ctx context.Context, result *authclient.AuthResult) Snapshot {
	sess := result.Session
	if sess.ExpiresAt == 0 && sess.AccessToken != "" {
		if exp, err := authclient.TokenExpiry(sess.AccessToken); err == nil {
			sess.ExpiresAt = exp.UnixMilli()
		} else {
			log.Debug().Msg("session missing expires_at and exp claim")
		}
	}

	user := result.User
	s.user = &user
	s.session = &sess
	s.stage = DeriveStage(result.SecuritySetupRequired, result.ProfileExists)
	s.status = StatusSuccess
	s.lastError = ""
	s.persistLocked(ctx)
	return s.snapshotLocked()
}

// persistLocked mirrors the in-memory state to the keeper. Persistence
// failures are logged, not surfaced: the in-memory session keeps the
// app signed in for this run and the next write may succeed.
func (s *Store) persistLocked(ctx context.Context) {
	if s.session == nil {
		if err := s.keeper.Clear(ctx); err != nil {
			log.Err(err).Msg("failed to clear persisted auth record")
		}
		return
	}
	record := securestore.Record{
		User:    s.user,
		Session: s.session,
		Stage:   string(s.stage),
	}
	if err := s.keeper.Save(ctx, record); err != nil {
		log.Err(err).Msg("failed to persist auth record")
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Stage:     s.stage,
		Status:    s.status,
		LastError: s.lastError,
	}
	if s.user != nil {
		user := *s.user
		snap.User = &user
	}
	if s.session != nil {
		sess := *s.session
		snap.Session = &sess
	}
	return snap
}

func (s *Store) notify(snap Snapshot) {
	s.listenerMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
