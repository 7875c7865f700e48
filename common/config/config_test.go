package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Setenv("CLIENT_ID", "client")
	t.Setenv("CLIENT_SECRET", "secret")
	t.Setenv("REDIRECT_URI", "http://localhost:3000/oauth2callback")
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load("mosaic")
	require.NoError(t, err)

	assert.Equal(t, "mosaic", cfg.Service.Name)
	assert.Equal(t, "imagecontainer", cfg.ObjectStore.Container)
	assert.Equal(t, "imagesqueue", cfg.Queue.Name)
	assert.Equal(t, "users", cfg.Database.UserTable)
	assert.Equal(t, "allusers", cfg.Database.Partition)
	assert.Equal(t, "keep", cfg.Identity.RefreshPolicy)
	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.Identity.Scopes)
}

func TestValidateIdentity_MissingCredentials(t *testing.T) {
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "secret")
	t.Setenv("REDIRECT_URI", "http://localhost/cb")

	cfg, err := Load("mosaic")
	require.NoError(t, err)
	require.ErrorIs(t, cfg.ValidateIdentity(), ErrMissingCredentials)

	setCredentials(t)
	cfg, err = Load("mosaic")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateIdentity())
}

func TestLoad_Overrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("QUEUE_VISIBILITY", "90s")
	t.Setenv("OAUTH_SCOPES", "openid, email")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")
	t.Setenv("TOKEN_REFRESH_POLICY", "refresh")

	cfg, err := Load("mosaic")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Queue.Visibility)
	assert.Equal(t, []string{"openid", "email"}, cfg.Identity.Scopes)
	assert.EqualValues(t, 1024, cfg.Upload.MaxBytes)
	assert.Equal(t, "refresh", cfg.Identity.RefreshPolicy)
}

func TestValidate_RejectsUnknownRefreshPolicy(t *testing.T) {
	setCredentials(t)
	t.Setenv("TOKEN_REFRESH_POLICY", "sometimes")

	_, err := Load("mosaic")
	assert.Error(t, err)
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, Database: "d"}}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.DatabaseURL())
}

func TestValidate_RateWindow(t *testing.T) {
	t.Setenv("UPLOAD_RATE_LIMIT", "10")
	t.Setenv("UPLOAD_RATE_WINDOW", "500ms")

	_, err := Load("mosaic")
	assert.Error(t, err)

	t.Setenv("UPLOAD_RATE_WINDOW", "30s")
	cfg, err := Load("mosaic")
	require.NoError(t, err)
	assert.EqualValues(t, 10, cfg.Upload.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Upload.RateWindow)
}

func TestValidate_RequiresPositiveTimeouts(t *testing.T) {
	for _, env := range []string{
		"TIMEOUT_STORE_WRITE",
		"TIMEOUT_STORE_CONTROL",
		"TIMEOUT_ENQUEUE",
		"TIMEOUT_TOKEN_EXCHANGE",
		"TIMEOUT_PROFILE_FETCH",
		"TIMEOUT_USER_STORE",
		"TIMEOUT_LISTING",
	} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "0s")

			_, err := Load("mosaic")
			require.Error(t, err)
			assert.Contains(t, err.Error(), env)
		})
	}
}

func TestTimeoutConfig_Validate(t *testing.T) {
	timeouts := TimeoutConfig{
		StoreWrite:    time.Minute,
		StoreControl:  time.Second,
		Enqueue:       time.Second,
		TokenExchange: time.Second,
		ProfileFetch:  time.Second,
		UserStore:     time.Second,
		Listing:       time.Second,
	}
	assert.NoError(t, timeouts.Validate())

	timeouts.Enqueue = -time.Second
	assert.ErrorContains(t, timeouts.Validate(), "TIMEOUT_ENQUEUE")
}
