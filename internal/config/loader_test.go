package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSecretProvider struct {
	mock.Mock
}

func (m *mockSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	args := m.Called(ctx, keys)
	if v := args.Get(0); v != nil {
		return v.(map[string]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeEnv backs loaderDeps with a plain map so tests never touch the
// process environment.
type fakeEnv struct {
	vars map[string]string
}

func newFakeEnv(vars map[string]string) *fakeEnv {
	if vars == nil {
		vars = map[string]string{}
	}
	return &fakeEnv{vars: vars}
}

func (f *fakeEnv) deps() loaderDeps {
	return loaderDeps{
		lookupEnv: func(key string) (string, bool) {
			v, ok := f.vars[key]
			return v, ok
		},
		setEnv: func(key, value string) error {
			f.vars[key] = value
			return nil
		},
		environ: func() []string {
			entries := make([]string, 0, len(f.vars))
			for k, v := range f.vars {
				entries = append(entries, fmt.Sprintf("%s=%s", k, v))
			}
			return entries
		},
	}
}

func TestResolveSSMParams_InjectsResolvedValues(t *testing.T) {
	env := newFakeEnv(map[string]string{
		"DATABASE_URL_SSM_PARAM":      "/prod/teamnetwork/database/url",
		"STRIPE_SECRET_KEY_SSM_PARAM": "/prod/teamnetwork/stripe/secret",
	})

	provider := new(mockSecretProvider)
	provider.On("GetParametersBatch", mock.Anything, mock.MatchedBy(func(keys []string) bool {
		return len(keys) == 2
	})).Return(map[string]string{
		"/prod/teamnetwork/database/url":  "postgres://resolved",
		"/prod/teamnetwork/stripe/secret": "sk_live_resolved",
	}, nil)

	require.NoError(t, resolveSSMParams(provider, env.deps()))
	assert.Equal(t, "postgres://resolved", env.vars["DATABASE_URL"])
	assert.Equal(t, "sk_live_resolved", env.vars["STRIPE_SECRET_KEY"])
}

func TestResolveSSMParams_DirectEnvWinsOverSSM(t *testing.T) {
	env := newFakeEnv(map[string]string{
		"DATABASE_URL":           "postgres://from-env",
		"DATABASE_URL_SSM_PARAM": "/prod/teamnetwork/database/url",
	})

	provider := new(mockSecretProvider)

	require.NoError(t, resolveSSMParams(provider, env.deps()))
	assert.Equal(t, "postgres://from-env", env.vars["DATABASE_URL"])
	provider.AssertNotCalled(t, "GetParametersBatch", mock.Anything, mock.Anything)
}

func TestResolveSSMParams_NoBindingsIsNoOp(t *testing.T) {
	env := newFakeEnv(map[string]string{"APP_ENV": "production"})
	provider := new(mockSecretProvider)

	require.NoError(t, resolveSSMParams(provider, env.deps()))
	provider.AssertNotCalled(t, "GetParametersBatch", mock.Anything, mock.Anything)
}

func TestResolveSSMParams_NilProviderWithBindings(t *testing.T) {
	env := newFakeEnv(map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/teamnetwork/database/url",
	})

	err := resolveSSMParams(nil, env.deps())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "DATABASE_URL")
}

func TestResolveSSMParams_MissingParameterReported(t *testing.T) {
	env := newFakeEnv(map[string]string{
		"DATABASE_URL_SSM_PARAM":      "/prod/teamnetwork/database/url",
		"STRIPE_SECRET_KEY_SSM_PARAM": "/prod/teamnetwork/stripe/secret",
	})

	provider := new(mockSecretProvider)
	provider.On("GetParametersBatch", mock.Anything, mock.Anything).
		Return(map[string]string{
			"/prod/teamnetwork/database/url": "postgres://resolved",
		}, nil)

	err := resolveSSMParams(provider, env.deps())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "STRIPE_SECRET_KEY")
}

func TestResolveSSMParams_ProviderFailureWrapped(t *testing.T) {
	env := newFakeEnv(map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/teamnetwork/database/url",
	})

	provider := new(mockSecretProvider)
	provider.On("GetParametersBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("ssm throttled"))

	err := resolveSSMParams(provider, env.deps())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.ErrorContains(t, cfgErr.Err, "ssm throttled")
}

func TestResolveSecrets_LocalEnvironmentSkipsSSM(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("DATABASE_URL_SSM_PARAM", "/prod/teamnetwork/database/url")

	provider := new(mockSecretProvider)
	require.NoError(t, ResolveSecrets(provider))
	provider.AssertNotCalled(t, "GetParametersBatch", mock.Anything, mock.Anything)
}

func TestConfigError_FormatsTypeAndCause(t *testing.T) {
	err := &ConfigError{
		Type:    ErrValidation,
		Message: "configuration validation failed",
		Err:     errors.New("field APP_ENV required"),
	}
	assert.Contains(t, err.Error(), "VALIDATION_FAILED")
	assert.Contains(t, err.Error(), "field APP_ENV required")
	assert.ErrorContains(t, err.Unwrap(), "APP_ENV required")
}
