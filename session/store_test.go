package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/internal/utils"
	"github.com/Jai-Dhiman/capture-sub001/securestore"
	"github.com/Jai-Dhiman/capture-sub001/session"
	"github.com/Jai-Dhiman/capture-sub001/session/storefakes"
)

const (
	testUserID       = "user-1"
	testEmail        = "john.doe@example.com"
	testAccessToken  = "access-token-1"
	testRefreshToken = "refresh-token-1"
)

// testFixture holds the store plus its fakes, with a controllable clock
type testFixture struct {
	mu     sync.Mutex
	now    time.Time
	api    *storefakes.FakeAuthAPI
	keeper *storefakes.FakeKeeper
	store  *session.Store
}

func (f *testFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func setupTestFixture(t *testing.T, options ...session.StoreOption) *testFixture {
	t.Helper()

	f := &testFixture{
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		api:    storefakes.NewFakeAuthAPI(),
		keeper: storefakes.NewFakeKeeper(),
	}

	options = append([]session.StoreOption{session.WithNowTime(f.clock)}, options...)
	store, err := session.NewStore(f.api, f.keeper, options...)
	require.NoError(t, err)
	f.store = store
	return f
}

func (f *testFixture) authResult(access, refresh string, expiresAt time.Time) *authclient.AuthResult {
	return &authclient.AuthResult{
		Session: authclient.Session{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    expiresAt.UnixMilli(),
		},
		User: authclient.User{ID: testUserID, Email: testEmail},
	}
}

// seedSignedIn puts the store into an authenticated state
func (f *testFixture) seedSignedIn(t *testing.T) {
	t.Helper()

	result := f.authResult(testAccessToken, testRefreshToken, f.clock().Add(time.Hour))
	require.NoError(t, f.store.SetAuthData(context.Background(), result))
}

func (f *testFixture) seedRecord(expiresAt time.Time, stage session.Stage) {
	f.keeper.SetRecord(&securestore.Record{
		User: &authclient.User{ID: testUserID, Email: testEmail},
		Session: &authclient.Session{
			AccessToken:  testAccessToken,
			RefreshToken: testRefreshToken,
			ExpiresAt:    expiresAt.UnixMilli(),
		},
		Stage: string(stage),
	})
}

func authInvalidErr() error {
	return &authclient.Error{
		Kind:       authclient.KindUnauthenticated,
		Code:       authclient.CodeInvalidRefreshToken,
		Message:    "refresh token revoked",
		HTTPStatus: 401,
	}
}

func networkErr() error {
	return &authclient.Error{Kind: authclient.KindNetwork, Message: "network request failed"}
}

func TestNewStore_RequiresDependencies(t *testing.T) {
	_, err := session.NewStore(nil, storefakes.NewFakeKeeper())
	require.Error(t, err)

	_, err = session.NewStore(storefakes.NewFakeAuthAPI(), nil)
	require.Error(t, err)
}

func TestSetAuthData_StoresSessionAndDerivesStage(t *testing.T) {
	f := setupTestFixture(t)

	result := f.authResult(testAccessToken, testRefreshToken, f.clock().Add(time.Hour))
	require.NoError(t, f.store.SetAuthData(context.Background(), result))

	snap := f.store.Snapshot()
	require.Equal(t, session.StageAuthenticated, snap.Stage)
	require.Equal(t, session.StatusSuccess, snap.Status)
	require.Empty(t, snap.LastError)
	require.Equal(t, testAccessToken, snap.Session.AccessToken)
	require.Equal(t, testUserID, snap.User.ID)

	record := f.keeper.Record()
	require.NotNil(t, record)
	require.Equal(t, testRefreshToken, record.Session.RefreshToken)
	require.Equal(t, string(session.StageAuthenticated), record.Stage)
}

func TestSetAuthData_SecuritySetupWins(t *testing.T) {
	f := setupTestFixture(t)

	result := f.authResult(testAccessToken, testRefreshToken, f.clock().Add(time.Hour))
	result.SecuritySetupRequired = utils.Ptr(true)
	result.ProfileExists = utils.Ptr(false)
	require.NoError(t, f.store.SetAuthData(context.Background(), result))

	require.Equal(t, session.StageSecuritySetupRequired, f.store.Snapshot().Stage)
}

func TestSetAuthData_ProfileRequired(t *testing.T) {
	f := setupTestFixture(t)

	result := f.authResult(testAccessToken, testRefreshToken, f.clock().Add(time.Hour))
	result.ProfileExists = utils.Ptr(false)
	require.NoError(t, f.store.SetAuthData(context.Background(), result))

	require.Equal(t, session.StageProfileRequired, f.store.Snapshot().Stage)
}

func TestSetAuthData_NotifiesListeners(t *testing.T) {
	f := setupTestFixture(t)

	var got []session.Snapshot
	remove := f.store.AddListener(func(snap session.Snapshot) {
		got = append(got, snap)
	})

	f.seedSignedIn(t)
	require.Len(t, got, 1)
	require.Equal(t, session.StageAuthenticated, got[0].Stage)

	remove()
	f.seedSignedIn(t)
	require.Len(t, got, 1)
}

func TestSetAuthData_ExpiryFallbackFromTokenClaims(t *testing.T) {
	f := setupTestFixture(t)

	exp := f.clock().Add(45 * time.Minute)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUserID,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	result := &authclient.AuthResult{
		Session: authclient.Session{AccessToken: signed, RefreshToken: testRefreshToken},
		User:    authclient.User{ID: testUserID, Email: testEmail},
	}
	require.NoError(t, f.store.SetAuthData(context.Background(), result))

	snap := f.store.Snapshot()
	require.Equal(t, exp.Unix(), snap.Session.ExpiryTime().Unix())
}

func TestSetAuthData_PersistFailureKeepsMemoryState(t *testing.T) {
	f := setupTestFixture(t)
	f.keeper.SaveErr = errors.New("disk full")

	result := f.authResult(testAccessToken, testRefreshToken, f.clock().Add(time.Hour))
	require.NoError(t, f.store.SetAuthData(context.Background(), result))

	require.NotNil(t, f.store.Snapshot().Session)
}

func TestClearAuth_RevokesThenResets(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	require.NoError(t, f.store.ClearAuth(context.Background()))

	snap := f.store.Snapshot()
	require.Nil(t, snap.Session)
	require.Nil(t, snap.User)
	require.Equal(t, session.StageUnauthenticated, snap.Stage)
	require.Equal(t, session.StatusSuccess, snap.Status)

	require.Equal(t, []string{testRefreshToken}, f.api.LogoutArgs())
	require.Nil(t, f.keeper.Record())
}

func TestClearAuth_RemoteFailureStillClears(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)
	f.api.LogoutFunc = func(ctx context.Context, refreshToken string) error {
		return networkErr()
	}

	require.NoError(t, f.store.ClearAuth(context.Background()))

	require.Nil(t, f.store.Snapshot().Session)
	require.Nil(t, f.keeper.Record())
}

func TestClearAuth_WithoutSessionSkipsRemote(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.store.ClearAuth(context.Background()))
	require.Zero(t, f.api.LogoutCallCount())
}

func TestRefreshSession_Success(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	rotated := f.authResult("access-token-2", "refresh-token-2", f.clock().Add(2*time.Hour))
	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return rotated, nil
	}

	newSession, err := f.store.RefreshSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-token-2", newSession.AccessToken)

	snap := f.store.Snapshot()
	require.Equal(t, "refresh-token-2", snap.Session.RefreshToken)
	require.Equal(t, session.StatusSuccess, snap.Status)
	require.Equal(t, []string{testRefreshToken}, f.api.RefreshArgs())

	record := f.keeper.Record()
	require.Equal(t, "refresh-token-2", record.Session.RefreshToken)
}

func TestRefreshSession_RederivesStageFromFlags(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	rotated := f.authResult("access-token-2", "refresh-token-2", f.clock().Add(2*time.Hour))
	rotated.SecuritySetupRequired = utils.Ptr(true)
	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return rotated, nil
	}

	_, err := f.store.RefreshSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.StageSecuritySetupRequired, f.store.Snapshot().Stage)
}

func TestRefreshSession_NoTokenClearsAuth(t *testing.T) {
	f := setupTestFixture(t)

	newSession, err := f.store.RefreshSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, newSession)
	require.Zero(t, f.api.RefreshCallCount())
	require.Equal(t, session.StageUnauthenticated, f.store.Snapshot().Stage)
}

func TestRefreshSession_ConcurrentCallDropped(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	started := make(chan struct{})
	proceed := make(chan struct{})
	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		close(started)
		<-proceed
		return f.authResult("access-token-2", "refresh-token-2", f.clock().Add(2*time.Hour)), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.store.RefreshSession(context.Background())
		done <- err
	}()

	<-started
	_, err := f.store.RefreshSession(context.Background())
	require.ErrorIs(t, err, session.ErrRefreshInFlight)

	close(proceed)
	require.NoError(t, <-done)
	require.Equal(t, 1, f.api.RefreshCallCount())
}

func TestRefreshSession_AuthInvalidClearsWithoutRetry(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return nil, authInvalidErr()
	}

	_, err := f.store.RefreshSession(context.Background())
	require.True(t, authclient.IsAuthInvalid(err))

	snap := f.store.Snapshot()
	require.Nil(t, snap.Session)
	require.Equal(t, session.StageUnauthenticated, snap.Stage)
	require.Nil(t, f.keeper.Record())
	require.Equal(t, 1, f.api.RefreshCallCount())
}

func TestRefreshSession_NetworkErrorKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return nil, networkErr()
	}

	_, err := f.store.RefreshSession(context.Background())
	require.True(t, authclient.IsNetwork(err))

	snap := f.store.Snapshot()
	require.NotNil(t, snap.Session)
	require.Equal(t, testRefreshToken, snap.Session.RefreshToken)
	require.Equal(t, session.StatusError, snap.Status)
	require.NotEmpty(t, snap.LastError)
	require.NotNil(t, f.keeper.Record())
}

func TestRefreshSession_ClearDuringFlightIsNotResurrected(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	started := make(chan struct{})
	proceed := make(chan struct{})
	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		close(started)
		<-proceed
		return f.authResult("access-token-2", "refresh-token-2", f.clock().Add(2*time.Hour)), nil
	}

	type result struct {
		session *authclient.Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := f.store.RefreshSession(context.Background())
		done <- result{sess, err}
	}()

	<-started
	require.NoError(t, f.store.ClearAuth(context.Background()))
	close(proceed)

	got := <-done
	require.NoError(t, got.err)
	require.Nil(t, got.session)

	snap := f.store.Snapshot()
	require.Nil(t, snap.Session)
	require.Equal(t, session.StageUnauthenticated, snap.Stage)
	require.Nil(t, f.keeper.Record())
}

func TestRefreshSession_EarlierExpiryStillApplied(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	rotated := f.authResult("access-token-2", "refresh-token-2", f.clock().Add(10*time.Minute))
	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return rotated, nil
	}

	_, err := f.store.RefreshSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-token-2", f.store.Snapshot().Session.AccessToken)
}

func TestCheckInitialSession_NoRecordSignsOut(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.store.CheckInitialSession(context.Background()))

	snap := f.store.Snapshot()
	require.Equal(t, session.StageUnauthenticated, snap.Stage)
	require.Equal(t, session.StatusSuccess, snap.Status)
	require.Zero(t, f.api.RefreshCallCount())
	require.Zero(t, f.api.MeCallCount())
}

func TestCheckInitialSession_ValidSessionConfirmedViaWhoami(t *testing.T) {
	f := setupTestFixture(t)
	f.seedRecord(f.clock().Add(time.Hour), session.StageAuthenticated)

	f.api.MeFunc = func(ctx context.Context, accessToken string) (*authclient.MeResult, error) {
		require.Equal(t, testAccessToken, accessToken)
		return &authclient.MeResult{
			User:          authclient.User{ID: testUserID, Email: testEmail},
			ProfileExists: utils.Ptr(true),
		}, nil
	}

	require.NoError(t, f.store.CheckInitialSession(context.Background()))

	snap := f.store.Snapshot()
	require.Equal(t, session.StageAuthenticated, snap.Stage)
	require.Equal(t, session.StatusSuccess, snap.Status)
	require.Equal(t, testAccessToken, snap.Session.AccessToken)
	require.Zero(t, f.api.RefreshCallCount())
}

func TestCheckInitialSession_WhoamiFlagsRecomputeStage(t *testing.T) {
	f := setupTestFixture(t)
	f.seedRecord(f.clock().Add(time.Hour), session.StageAuthenticated)

	f.api.MeFunc = func(ctx context.Context, accessToken string) (*authclient.MeResult, error) {
		return &authclient.MeResult{
			User:          authclient.User{ID: testUserID, Email: testEmail},
			ProfileExists: utils.Ptr(false),
		}, nil
	}

	require.NoError(t, f.store.CheckInitialSession(context.Background()))
	require.Equal(t, session.StageProfileRequired, f.store.Snapshot().Stage)
}

func TestCheckInitialSession_ExpiringSoonRefreshes(t *testing.T) {
	f := setupTestFixture(t)
	f.seedRecord(f.clock().Add(2*time.Minute), session.StageAuthenticated)

	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		require.Equal(t, testRefreshToken, refreshToken)
		return f.authResult("access-token-2", "refresh-token-2", f.clock().Add(time.Hour)), nil
	}

	require.NoError(t, f.store.CheckInitialSession(context.Background()))

	snap := f.store.Snapshot()
	require.Equal(t, session.StageAuthenticated, snap.Stage)
	require.Equal(t, "access-token-2", snap.Session.AccessToken)
	require.Zero(t, f.api.MeCallCount())
}

func TestCheckInitialSession_WhoamiFailureFallsBackToRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.seedRecord(f.clock().Add(time.Hour), session.StageAuthenticated)

	f.api.MeFunc = func(ctx context.Context, accessToken string) (*authclient.MeResult, error) {
		return nil, &authclient.Error{Kind: authclient.KindServer, Message: "internal", HTTPStatus: 500}
	}
	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return f.authResult("access-token-2", "refresh-token-2", f.clock().Add(time.Hour)), nil
	}

	require.NoError(t, f.store.CheckInitialSession(context.Background()))
	require.Equal(t, "access-token-2", f.store.Snapshot().Session.AccessToken)
}

func TestCheckInitialSession_InvalidRefreshTokenClears(t *testing.T) {
	f := setupTestFixture(t)
	f.seedRecord(f.clock().Add(time.Minute), session.StageAuthenticated)

	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return nil, authInvalidErr()
	}

	require.NoError(t, f.store.CheckInitialSession(context.Background()))

	snap := f.store.Snapshot()
	require.Nil(t, snap.Session)
	require.Equal(t, session.StageUnauthenticated, snap.Stage)
	require.Nil(t, f.keeper.Record())
	require.Equal(t, 1, f.api.RefreshCallCount())
}

func TestCheckInitialSession_OfflineKeepsStoredSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedRecord(f.clock().Add(time.Minute), session.StageAuthenticated)

	f.api.RefreshFunc = func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
		return nil, networkErr()
	}

	require.NoError(t, f.store.CheckInitialSession(context.Background()))

	snap := f.store.Snapshot()
	require.NotNil(t, snap.Session)
	require.Equal(t, session.StatusError, snap.Status)
	require.NotNil(t, f.keeper.Record())
}

func TestCheckInitialSession_DormantSessionForcesSignIn(t *testing.T) {
	f := setupTestFixture(t)
	f.seedRecord(f.clock().Add(-31*24*time.Hour), session.StageAuthenticated)

	require.NoError(t, f.store.CheckInitialSession(context.Background()))

	snap := f.store.Snapshot()
	require.Nil(t, snap.Session)
	require.Equal(t, session.StageUnauthenticated, snap.Stage)
	require.Zero(t, f.api.RefreshCallCount())
	require.Zero(t, f.api.MeCallCount())
}

func TestSetStage_FollowsTransitionTable(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	result := f.authResult(testAccessToken, testRefreshToken, f.clock().Add(time.Hour))
	result.SecuritySetupRequired = utils.Ptr(true)
	require.NoError(t, f.store.SetAuthData(ctx, result))

	require.NoError(t, f.store.SetStage(ctx, session.StageProfileRequired))
	require.NoError(t, f.store.SetStage(ctx, session.StageAuthenticated))

	err := f.store.SetStage(ctx, session.StageProfileRequired)
	require.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestSetStage_RejectsLeavingUnauthenticated(t *testing.T) {
	f := setupTestFixture(t)

	err := f.store.SetStage(context.Background(), session.StageAuthenticated)
	require.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestSetStage_RejectsUnknownStage(t *testing.T) {
	f := setupTestFixture(t)

	err := f.store.SetStage(context.Background(), session.Stage("bogus"))
	require.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestSetStage_SameStageIsNoOp(t *testing.T) {
	f := setupTestFixture(t)

	var notifications int
	f.store.AddListener(func(session.Snapshot) { notifications++ })

	require.NoError(t, f.store.SetStage(context.Background(), session.StageUnauthenticated))
	require.Zero(t, notifications)
}

func TestSetStage_PersistsNewStage(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	result := f.authResult(testAccessToken, testRefreshToken, f.clock().Add(time.Hour))
	result.ProfileExists = utils.Ptr(false)
	require.NoError(t, f.store.SetAuthData(ctx, result))

	require.NoError(t, f.store.SetStage(ctx, session.StageAuthenticated))
	require.Equal(t, string(session.StageAuthenticated), f.keeper.Record().Stage)
}

func TestSnapshot_IsACopy(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSignedIn(t)

	snap := f.store.Snapshot()
	snap.User.ID = "tampered"
	snap.Session.AccessToken = "tampered"

	fresh := f.store.Snapshot()
	require.Equal(t, testUserID, fresh.User.ID)
	require.Equal(t, testAccessToken, fresh.Session.AccessToken)
}
