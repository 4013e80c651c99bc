// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Scan environment for _SSM_PARAM suffix variables.
//  4. If APP_ENV != "local", resolve SSM parameters via the
//     SecretProvider and inject the resolved values back into the
//     environment.
//  5. Use envconfig to process struct tags and populate Config.
//  6. Populate BuildInfo from linker-injected variables.
//  7. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix is the environment variable suffix used to identify
// SSM parameter pointer variables. For example, DATABASE_URL_SSM_PARAM
// points to the SSM path for the DATABASE_URL secret.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// envLookup matches os.LookupEnv and allows injection for testing.
type envLookup func(key string) (string, bool)

// envSet matches os.Setenv and allows injection for testing.
type envSet func(key, value string) error

// environ matches os.Environ and allows injection for testing.
type environ func() []string

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
	environ   environ
}

// defaultDeps returns the standard OS-backed dependencies.
func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the TeamNetwork configuration.
//
// The provider parameter is the SecretProvider to use for SSM
// resolution. For local development the provider may be nil (SSM
// resolution is skipped); for non-local environments it must be
// non-nil when any _SSM_PARAM variables are present.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

// loadConfigWithDeps is the internal implementation of LoadConfig that
// accepts injectable dependencies for testing.
func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// Enforce UTC to prevent drift bugs.
	time.Local = time.UTC

	// godotenv silently succeeds if no .env file exists and does NOT
	// override existing environment variables.
	_ = godotenv.Load()

	appEnv, _ := deps.lookupEnv("APP_ENV")

	if appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	// The empty prefix "" means envconfig uses the exact tag values
	// (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// ResolveSecrets performs the SSM secret resolution step in isolation,
// without loading or validating the full Config struct. It is intended
// for worker entry points that read individual env vars via os.Getenv()
// instead of using LoadConfig(). Call early in main(), before any
// os.Getenv() calls that depend on SSM-resolved values.
//
// A no-op when APP_ENV is "local" or no _SSM_PARAM variables exist.
func ResolveSecrets(provider SecretProvider) error {
	appEnv, _ := os.LookupEnv("APP_ENV")
	if appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// resolveSSMParams scans the environment for variables ending in
// _SSM_PARAM, fetches the corresponding secret values via the
// SecretProvider, and injects them back into the environment so that
// envconfig can process them.
//
// For example, DATABASE_URL_SSM_PARAM=/prod/teamnetwork/database/url:
//  1. Extract the SSM path: /prod/teamnetwork/database/url
//  2. Derive the target env var name: DATABASE_URL
//  3. Fetch the secret value via the provider
//  4. Set DATABASE_URL=<resolved value> in the environment
//
// If the target variable is already set (direct env var or .env file),
// SSM resolution is skipped for it, respecting the priority chain
// OS Environment > Dotenv > SSM.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	type ssmBinding struct {
		targetEnvVar string // e.g., DATABASE_URL
		ssmPath      string // e.g., /prod/teamnetwork/database/url
	}

	var bindings []ssmBinding
	ssmPathToTarget := make(map[string]string)

	for _, envEntry := range deps.environ() {
		eqIdx := strings.IndexByte(envEntry, '=')
		if eqIdx < 0 {
			continue
		}
		key := envEntry[:eqIdx]

		if !strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}

		targetEnvVar := strings.TrimSuffix(key, ssmParamSuffix)

		// Priority: Env > SSM.
		if _, exists := deps.lookupEnv(targetEnvVar); exists {
			continue
		}

		ssmPath := envEntry[eqIdx+1:]
		if ssmPath == "" {
			continue
		}

		bindings = append(bindings, ssmBinding{
			targetEnvVar: targetEnvVar,
			ssmPath:      ssmPath,
		})
		ssmPathToTarget[ssmPath] = targetEnvVar
	}

	if len(bindings) == 0 {
		return nil
	}

	if provider == nil {
		targetVars := make([]string, 0, len(bindings))
		for _, b := range bindings {
			targetVars = append(targetVars, b.targetEnvVar)
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targetVars, ", ")),
		}
	}

	ssmPaths := make([]string, 0, len(bindings))
	for _, b := range bindings {
		ssmPaths = append(ssmPaths, b.ssmPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, ssmPaths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(ssmPaths)),
			Err:     err,
		}
	}

	for ssmPath, value := range resolved {
		targetEnvVar, ok := ssmPathToTarget[ssmPath]
		if !ok {
			continue
		}
		if err := deps.setEnv(targetEnvVar, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", targetEnvVar),
				Err:     err,
			}
		}
	}

	var missing []string
	for _, b := range bindings {
		if _, ok := resolved[b.ssmPath]; !ok {
			missing = append(missing, b.targetEnvVar)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
