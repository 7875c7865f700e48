package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/cmd/mosaic/repository"
	"github.com/mosaic/creator/common/config"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/metrics"
)

type fakeProvider struct {
	exchangeErr error
	profileErr  error
	profile     models.Profile
	token       models.Token
	exchanges   atomic.Int32
	profiles    atomic.Int32
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (models.Token, error) {
	p.exchanges.Add(1)
	if p.exchangeErr != nil {
		return models.Token{}, p.exchangeErr
	}
	return p.token, nil
}

func (p *fakeProvider) FetchProfile(ctx context.Context, token models.Token) (models.Profile, error) {
	p.profiles.Add(1)
	if p.profileErr != nil {
		return models.Profile{}, p.profileErr
	}
	return p.profile, nil
}

func newFakeProvider(accessToken string) *fakeProvider {
	return &fakeProvider{
		token:   models.Token{AccessToken: accessToken},
		profile: models.Profile{ID: "108234", Emails: []string{"ada@example.com", "ada@work.example.com"}},
	}
}

// failingUserStore injects store errors in front of a memory store
type failingUserStore struct {
	*repository.MemoryUserStore
	findErr   error
	insertErr error
	updateErr error
}

func (s *failingUserStore) FindByAttribute(ctx context.Context, attribute, value string) ([]models.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryUserStore.FindByAttribute(ctx, attribute, value)
}

func (s *failingUserStore) InsertIfAbsent(ctx context.Context, user models.User) (models.User, bool, error) {
	if s.insertErr != nil {
		return models.User{}, false, s.insertErr
	}
	return s.MemoryUserStore.InsertIfAbsent(ctx, user)
}

func (s *failingUserStore) UpdateAccessToken(ctx context.Context, id, token string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.MemoryUserStore.UpdateAccessToken(ctx, id, token)
}

// barrierUserStore holds every lookup until n callers have looked up, so
// they all observe the store before anyone inserts
type barrierUserStore struct {
	*repository.MemoryUserStore
	wg sync.WaitGroup
}

func newBarrierUserStore(n int) *barrierUserStore {
	s := &barrierUserStore{MemoryUserStore: repository.NewMemoryUserStore()}
	s.wg.Add(n)
	return s
}

func (s *barrierUserStore) FindByAttribute(ctx context.Context, attribute, value string) ([]models.User, error) {
	found, err := s.MemoryUserStore.FindByAttribute(ctx, attribute, value)
	s.wg.Done()
	s.wg.Wait()
	return found, err
}

func newResolver(p IdentityProvider, users repository.UserStore, policy TokenPolicy) *IdentityResolver {
	return NewIdentityResolver(p, users, ResolverConfig{
		TokenPolicy:          policy,
		TokenExchangeTimeout: time.Second,
		ProfileFetchTimeout:  time.Second,
		UserStoreTimeout:     time.Second,
	}, metrics.New(), logger.Discard())
}

func TestResolve_FirstLoginCreatesUser(t *testing.T) {
	users := repository.NewMemoryUserStore()
	r := newResolver(newFakeProvider("at-1"), users, TokenPolicyKeep)

	user, err := r.Resolve(context.Background(), "code-1")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "108234", user.FederatedID)
	assert.Equal(t, "at-1", user.AccessToken)
	assert.Equal(t, 1, users.Len())
}

func TestResolve_RepeatLoginKeepsStoredToken(t *testing.T) {
	users := repository.NewMemoryUserStore()
	provider := newFakeProvider("at-1")
	r := newResolver(provider, users, TokenPolicyKeep)

	first, err := r.Resolve(context.Background(), "code-1")
	require.NoError(t, err)

	provider.token = models.Token{AccessToken: "at-2"}
	second, err := r.Resolve(context.Background(), "code-2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.FederatedID, second.FederatedID)
	assert.Equal(t, first.Email, second.Email)
	assert.Equal(t, "at-1", second.AccessToken)

	stored, err := users.FindByAttribute(context.Background(), repository.AttrFederatedID, "108234")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "at-1", stored[0].AccessToken)
}

func TestResolve_RepeatLoginRefreshPolicy(t *testing.T) {
	users := repository.NewMemoryUserStore()
	provider := newFakeProvider("at-1")
	r := newResolver(provider, users, TokenPolicyRefresh)

	first, err := r.Resolve(context.Background(), "code-1")
	require.NoError(t, err)

	provider.token = models.Token{AccessToken: "at-2"}
	second, err := r.Resolve(context.Background(), "code-2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "at-2", second.AccessToken)

	stored, err := users.FindByAttribute(context.Background(), repository.AttrFederatedID, "108234")
	require.NoError(t, err)
	assert.Equal(t, "at-2", stored[0].AccessToken)
}

func TestResolve_ConcurrentFirstLoginsCreateOneUser(t *testing.T) {
	const logins = 2
	users := newBarrierUserStore(logins)
	r := newResolver(newFakeProvider("at-1"), users, TokenPolicyKeep)

	var wg sync.WaitGroup
	results := make([]*models.User, logins)
	errs := make([]error, logins)
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), "code")
		}(i)
	}
	wg.Wait()

	for i := 0; i < logins; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, users.Len())
}

func TestResolve_TokenExchangeFailureMutatesNothing(t *testing.T) {
	users := repository.NewMemoryUserStore()
	provider := newFakeProvider("at-1")
	provider.exchangeErr = errors.New("invalid_grant")
	r := newResolver(provider, users, TokenPolicyKeep)

	user, err := r.Resolve(context.Background(), "bad-code")
	require.ErrorIs(t, err, ErrTokenExchangeFailed)
	assert.Nil(t, user)
	assert.Zero(t, provider.profiles.Load())
	assert.Zero(t, users.Len())
}

func TestResolve_MissingCodeNeverCallsProvider(t *testing.T) {
	provider := newFakeProvider("at-1")
	r := newResolver(provider, repository.NewMemoryUserStore(), TokenPolicyKeep)

	_, err := r.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrTokenExchangeFailed)
	assert.Zero(t, provider.exchanges.Load())
}

func TestResolve_Failures(t *testing.T) {
	storeDown := errors.New("connection refused")

	tests := []struct {
		name   string
		setup  func(p *fakeProvider, s *failingUserStore)
		policy TokenPolicy
		seed   bool
		want   error
	}{
		{
			name:  "empty access token",
			setup: func(p *fakeProvider, s *failingUserStore) { p.token = models.Token{} },
			want:  ErrTokenExchangeFailed,
		},
		{
			name:  "profile endpoint error",
			setup: func(p *fakeProvider, s *failingUserStore) { p.profileErr = errors.New("status=401") },
			want:  ErrProfileFetchFailed,
		},
		{
			name:  "profile without email",
			setup: func(p *fakeProvider, s *failingUserStore) { p.profile.Emails = nil },
			want:  ErrProfileFetchFailed,
		},
		{
			name:  "profile without id",
			setup: func(p *fakeProvider, s *failingUserStore) { p.profile.ID = "" },
			want:  ErrProfileFetchFailed,
		},
		{
			name:  "lookup fails",
			setup: func(p *fakeProvider, s *failingUserStore) { s.findErr = storeDown },
			want:  ErrStoreQueryFailed,
		},
		{
			name:  "insert fails",
			setup: func(p *fakeProvider, s *failingUserStore) { s.insertErr = storeDown },
			want:  ErrPersistFailed,
		},
		{
			name: "token refresh fails",
			setup: func(p *fakeProvider, s *failingUserStore) {
				p.token = models.Token{AccessToken: "at-2"}
				s.updateErr = storeDown
			},
			policy: TokenPolicyRefresh,
			seed:   true,
			want:   ErrPersistFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider("at-1")
			users := &failingUserStore{MemoryUserStore: repository.NewMemoryUserStore()}
			if tt.seed {
				_, err := users.Insert(context.Background(), &models.User{Email: "ada@example.com", FederatedID: "108234", AccessToken: "at-1"})
				require.NoError(t, err)
			}
			tt.setup(provider, users)

			user, err := newResolver(provider, users, tt.policy).Resolve(context.Background(), "code")
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, user)
		})
	}
}

func TestOAuthProvider_ExchangeAndFetchProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-123",
			"refresh_token": "rt-456",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"108234","email":"ada@example.com","email_verified":true}`))
	})
	mux.HandleFunc("/legacy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","emails":[{"value":"grace@example.com","type":"account"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.IdentityConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:3000/oauth2callback",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		ProfileURL:   srv.URL + "/userinfo",
		Scopes:       []string{"openid", "email"},
	}
	provider := NewOAuthProvider(cfg, srv.Client())
	ctx := context.Background()

	authURL := provider.AuthCodeURL("state-1")
	assert.Contains(t, authURL, srv.URL+"/auth?")
	assert.Contains(t, authURL, "state=state-1")
	assert.Contains(t, authURL, "client_id=client")

	token, err := provider.Exchange(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "at-123", token.AccessToken)
	assert.Equal(t, "rt-456", token.RefreshToken)

	profile, err := provider.FetchProfile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, models.Profile{ID: "108234", Emails: []string{"ada@example.com"}}, profile)

	_, err = provider.Exchange(ctx, "bad-code")
	assert.Error(t, err)

	_, err = provider.FetchProfile(ctx, models.Token{AccessToken: "wrong"})
	assert.ErrorContains(t, err, "status=401")

	cfg.ProfileURL = srv.URL + "/legacy"
	legacy, err := NewOAuthProvider(cfg, srv.Client()).FetchProfile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, models.Profile{ID: "42", Emails: []string{"grace@example.com"}}, legacy)

	// End to end through the resolver
	users := repository.NewMemoryUserStore()
	user, err := newResolver(provider, users, TokenPolicyKeep).Resolve(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "108234", user.FederatedID)
	assert.Equal(t, "at-123", user.AccessToken)
}
