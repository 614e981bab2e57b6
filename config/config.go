package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/seo-optimizer/metascan/analyzer"
	"github.com/seo-optimizer/metascan/safefetch"
)

// Config holds the application configuration
type Config struct {
	// Server
	Port            string
	GinMode         string
	DevMode         bool
	CORSAllowOrigin string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Analysis
	AnalyzeTimeout time.Duration
	Fetch          safefetch.Policy
}

// envFiles are tried in order; the first one found wins.
var envFiles = []string{".env.development", ".env"}

// LoadEnvFiles loads the first dotenv file present. Variables already set in
// the environment are never overwritten. It returns the file used, if any.
func LoadEnvFiles() string {
	for _, name := range envFiles {
		if err := godotenv.Load(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads configuration from environment variables with defaults. Fetch
// limits come from FETCH_POLICY_FILE when set, then individual FETCH_*
// variables override the file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8082"),
		GinMode:         getEnv("GIN_MODE", gin.ReleaseMode),
		DevMode:         getEnvBool("DEV_MODE", false),
		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		AnalyzeTimeout: getEnvDuration("ANALYZE_TIMEOUT", analyzer.DefaultTimeout),
	}

	policy := safefetch.DefaultPolicy()
	if path := os.Getenv("FETCH_POLICY_FILE"); path != "" {
		var err error
		if policy, err = LoadPolicyFile(path); err != nil {
			return nil, err
		}
	}
	applyFetchEnv(&policy)

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch policy: %w", err)
	}
	if cfg.AnalyzeTimeout <= 0 {
		return nil, errors.New("ANALYZE_TIMEOUT must be positive")
	}
	cfg.Fetch = policy
	return cfg, nil
}

// LoadPolicyFile decodes a YAML fetch policy on top of the defaults, so the
// file only needs the keys it changes.
func LoadPolicyFile(path string) (safefetch.Policy, error) {
	policy := safefetch.DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read policy file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return policy, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return policy, nil
}

func applyFetchEnv(p *safefetch.Policy) {
	p.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", p.FetchTimeout)
	p.ResolveTimeout = getEnvDuration("FETCH_RESOLVE_TIMEOUT", p.ResolveTimeout)
	p.MaxBodyBytes = int64(getEnvInt("FETCH_MAX_BYTES", int(p.MaxBodyBytes)))
	p.MaxRedirects = getEnvInt("FETCH_MAX_REDIRECTS", p.MaxRedirects)
	p.UserAgent = getEnv("FETCH_USER_AGENT", p.UserAgent)
	p.PinResolvedAddrs = getEnvBool("FETCH_PIN_DNS", p.PinResolvedAddrs)
	if ports := getEnvIntList("FETCH_ALLOWED_PORTS"); ports != nil {
		p.AllowedPorts = ports
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvIntList parses a comma separated list. Nil means unset or unusable.
func getEnvIntList(key string) []int {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []int
	for _, field := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}
