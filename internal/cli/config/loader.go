package config

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes every environment variable read by the loader.
// Nested keys use a double underscore: LOOKEREXP_RATE_LIMIT__RPS.
const EnvPrefix = "LOOKEREXP_"

// legacyEnv maps the unprefixed credential variables onto config keys.
var legacyEnv = map[string]string{
	"LOOKER_CLIENT_ID":     "client_id",
	"LOOKER_CLIENT_SECRET": "client_secret",
}

// flagKeys maps flag names to config keys. Flags not listed here are
// command options, not configuration.
var flagKeys = map[string]string{
	"base-url":          "base_url",
	"api-url":           "api_url",
	"client-id":         "client_id",
	"output-dir":        "output_dir",
	"state":             "state_path",
	"dashboard":         "dashboards",
	"folder":            "folders",
	"include-deleted":   "include_deleted",
	"policy":            "policy",
	"concurrency":       "concurrency.dashboards",
	"query-concurrency": "concurrency.queries",
	"rps":               "rate_limit.rps",
	"timeout":           "timeouts.batch",
	"verbose":           "verbose",
	"log-format":        "log_format",
}

var configFileNames = []string{"lookerexp.yaml", "lookerexp.yml"}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// findConfigUpward searches upward from startDir for a lookerexp config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		for _, name := range configFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

func defaults() map[string]any {
	return map[string]any{
		"api_version":            DefaultAPIVersion,
		"output_dir":             DefaultOutputDir,
		"state_path":             DefaultStateFile,
		"policy":                 "skip",
		"include_deleted":        false,
		"concurrency.dashboards": DefaultDashboardConcurrency,
		"concurrency.queries":    DefaultQueryConcurrency,
		"rate_limit.rps":         DefaultRateLimit,
		"rate_limit.burst":       DefaultBurst,
		"retry.max_attempts":     DefaultMaxAttempts,
		"retry.base_delay":       DefaultBaseDelay.String(),
		"retry.max_delay":        DefaultMaxDelay.String(),
		"timeouts.request":       DefaultRequestTimeout.String(),
		"timeouts.batch":         DefaultBatchTimeout.String(),
		"verbose":                false,
		"log_format":             DefaultLogFormat,
	}
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// Only flags the user explicitly set take part.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = cfgFile
	if configFileUsed == "" {
		configFileUsed = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Environment: unprefixed credentials first so LOOKEREXP_ wins.
	if err := k.Load(env.Provider("LOOKER_", ".", func(s string) string {
		return legacyEnv[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	flagPaths := map[string]string{}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			val := posflag.FlagVal(flags, f)
			if key == "output_dir" || key == "state_path" {
				if s, _ := val.(string); s != "" {
					if abs, err := filepath.Abs(s); err == nil {
						flagPaths[key] = abs
					}
				}
			}
			return key, val
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Expand ${VAR} references and resolve paths.
	cfg.BaseURL = expandEnvVars(cfg.BaseURL)
	cfg.APIURL = expandEnvVars(cfg.APIURL)
	cfg.ClientID = expandEnvVars(cfg.ClientID)
	cfg.ClientSecret = expandEnvVars(cfg.ClientSecret)
	cfg.OutputDir = expandEnvVars(cfg.OutputDir)
	cfg.StatePath = expandEnvVars(cfg.StatePath)

	cfg.ProjectRoot = projectRoot
	if p, ok := flagPaths["output_dir"]; ok {
		cfg.OutputDir = p
	} else {
		cfg.OutputDir = resolvePathRelativeTo(cfg.OutputDir, projectRoot)
	}
	if p, ok := flagPaths["state_path"]; ok {
		cfg.StatePath = p
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}

	cfg.Dashboards = trimAll(cfg.Dashboards)
	cfg.Folders = trimAll(cfg.Folders)

	if cfg.APIURL == "" && cfg.BaseURL != "" {
		apiURL, err := DeriveAPIURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.APIURL = apiURL
	}

	currentConfig = &cfg
	return &cfg, nil
}

// envKey turns LOOKEREXP_RATE_LIMIT__RPS into rate_limit.rps.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// DeriveAPIURL returns the API endpoint for a Looker instance URL: same scheme
// and host on the default API port.
func DeriveAPIURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base_url %q: want an absolute URL such as https://example.looker.com", baseURL)
	}
	return u.Scheme + "://" + net.JoinHostPort(u.Hostname(), DefaultAPIPort), nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the most recently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
