package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/cmd/mosaic/repository"
	"github.com/mosaic/creator/common/config"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/metrics"
)

// Resolve failure kinds
var (
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrStoreQueryFailed    = errors.New("user store query failed")
	ErrPersistFailed       = errors.New("user persist failed")
)

const maxProfileBody = int64(1 << 20) // 1 MiB

// IdentityProvider is the federated identity provider
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.Token, error)
	FetchProfile(ctx context.Context, token models.Token) (models.Profile, error)
}

// OAuthProvider talks to an OAuth 2.0 / OpenID Connect provider
type OAuthProvider struct {
	oauth      *oauth2.Config
	profileURL string
	httpClient *http.Client
}

// NewOAuthProvider builds a provider from identity config. The Google
// endpoints are used unless overridden.
func NewOAuthProvider(cfg config.IdentityConfig, httpClient *http.Client) *OAuthProvider {
	endpoint := endpoints.Google
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		profileURL: cfg.ProfileURL,
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the consent page URL
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for tokens
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (models.Token, error) {
	tok, err := p.oauth.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return models.Token{}, err
	}
	return models.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// profileResponse accepts OpenID userinfo and the legacy people format
type profileResponse struct {
	Sub    string `json:"sub"`
	Email  string `json:"email"`
	ID     string `json:"id"`
	Emails []struct {
		Value string `json:"value"`
	} `json:"emails"`
}

// FetchProfile reads the caller's profile with the access token
func (p *OAuthProvider) FetchProfile(ctx context.Context, token models.Token) (models.Profile, error) {
	client := p.oauth.Client(p.clientContext(ctx), &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return models.Profile{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return models.Profile{}, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProfileBody))
		return models.Profile{}, fmt.Errorf("profile request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw profileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBody)).Decode(&raw); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	profile := models.Profile{ID: strings.TrimSpace(raw.Sub)}
	if profile.ID == "" {
		profile.ID = strings.TrimSpace(raw.ID)
	}
	if email := strings.TrimSpace(raw.Email); email != "" {
		profile.Emails = append(profile.Emails, email)
	}
	for _, e := range raw.Emails {
		if v := strings.TrimSpace(e.Value); v != "" {
			profile.Emails = append(profile.Emails, v)
		}
	}
	return profile, nil
}

func (p *OAuthProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// TokenPolicy decides what happens to the stored access token when a known
// user logs in again
type TokenPolicy string

const (
	// TokenPolicyKeep leaves the stored token untouched
	TokenPolicyKeep TokenPolicy = "keep"
	// TokenPolicyRefresh overwrites it with the newly issued token
	TokenPolicyRefresh TokenPolicy = "refresh"
)

// ResolverConfig holds the resolver's policy and per-call deadlines
type ResolverConfig struct {
	TokenPolicy          TokenPolicy
	TokenExchangeTimeout time.Duration
	ProfileFetchTimeout  time.Duration
	UserStoreTimeout     time.Duration
}

// IdentityResolver turns an authorization code into a local user, creating
// the user on first login
type IdentityResolver struct {
	provider IdentityProvider
	users    repository.UserStore
	cfg      ResolverConfig
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewIdentityResolver creates a resolver
func NewIdentityResolver(provider IdentityProvider, users repository.UserStore, cfg ResolverConfig, m *metrics.Metrics, log *logger.Logger) *IdentityResolver {
	if cfg.TokenPolicy == "" {
		cfg.TokenPolicy = TokenPolicyKeep
	}
	return &IdentityResolver{
		provider: provider,
		users:    users,
		cfg:      cfg,
		metrics:  m,
		log:      log,
	}
}

// Resolve returns the user for code. On error no user is returned and, for
// failures before the store is reached, nothing was written.
func (r *IdentityResolver) Resolve(ctx context.Context, code string) (user *models.User, err error) {
	defer func() { r.metrics.Resolve(err) }()

	log := r.log.WithContext(ctx)

	token, err := r.exchange(ctx, code)
	if err != nil {
		log.Error("token exchange failed", "error", err)
		return nil, err
	}

	profile, err := r.fetchProfile(ctx, token)
	if err != nil {
		log.Error("profile fetch failed", "error", err)
		return nil, err
	}
	log = log.WithFederatedID(profile.ID)

	found, err := r.find(ctx, profile.ID)
	if err != nil {
		log.Error("user lookup failed", "error", err)
		return nil, err
	}

	if len(found) > 0 {
		existing := found[0]
		if err := r.applyTokenPolicy(ctx, &existing, token); err != nil {
			log.Error("access token update failed", "user_id", existing.ID, "error", err)
			return nil, err
		}
		log.Info("user resolved", "user_id", existing.ID)
		return &existing, nil
	}

	stored, created, err := r.insert(ctx, models.User{
		Email:       profile.Emails[0],
		FederatedID: profile.ID,
		AccessToken: token.AccessToken,
	})
	if err != nil {
		log.Error("user insert failed", "error", err)
		return nil, err
	}

	if !created {
		// Lost the race against a concurrent first login
		if err := r.applyTokenPolicy(ctx, &stored, token); err != nil {
			log.Error("access token update failed", "user_id", stored.ID, "error", err)
			return nil, err
		}
		log.Info("user resolved after concurrent insert", "user_id", stored.ID)
		return &stored, nil
	}

	log.Info("user created", "user_id", stored.ID, "email", stored.Email)
	return &stored, nil
}

func (r *IdentityResolver) exchange(ctx context.Context, code string) (models.Token, error) {
	if strings.TrimSpace(code) == "" {
		return models.Token{}, fmt.Errorf("%w: missing authorization code", ErrTokenExchangeFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.TokenExchangeTimeout)
	defer cancel()

	token, err := r.provider.Exchange(ctx, code)
	if err != nil {
		return models.Token{}, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return models.Token{}, fmt.Errorf("%w: no access token issued", ErrTokenExchangeFailed)
	}
	return token, nil
}

func (r *IdentityResolver) fetchProfile(ctx context.Context, token models.Token) (models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProfileFetchTimeout)
	defer cancel()

	profile, err := r.provider.FetchProfile(ctx, token)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%w: %w", ErrProfileFetchFailed, err)
	}
	if profile.ID == "" {
		return models.Profile{}, fmt.Errorf("%w: profile has no id", ErrProfileFetchFailed)
	}
	if len(profile.Emails) == 0 || profile.Emails[0] == "" {
		return models.Profile{}, fmt.Errorf("%w: profile %s has no email", ErrProfileFetchFailed, profile.ID)
	}
	return profile, nil
}

func (r *IdentityResolver) find(ctx context.Context, federatedID string) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.UserStoreTimeout)
	defer cancel()

	found, err := r.users.FindByAttribute(ctx, repository.AttrFederatedID, federatedID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreQueryFailed, err)
	}
	return found, nil
}

func (r *IdentityResolver) insert(ctx context.Context, user models.User) (models.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.UserStoreTimeout)
	defer cancel()

	stored, created, err := r.users.InsertIfAbsent(ctx, user)
	if err != nil {
		return models.User{}, false, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return stored, created, nil
}

func (r *IdentityResolver) applyTokenPolicy(ctx context.Context, user *models.User, token models.Token) error {
	if r.cfg.TokenPolicy != TokenPolicyRefresh || user.AccessToken == token.AccessToken {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.UserStoreTimeout)
	defer cancel()

	if err := r.users.UpdateAccessToken(ctx, user.ID, token.AccessToken); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	user.AccessToken = token.AccessToken
	return nil
}
