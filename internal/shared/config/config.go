package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	KurrentDB      KurrentDBConfig
	Auth           AuthConfig
	MLLP           MLLPConfig
	FilePoller     FilePollerConfig
	Emission       EmissionConfig
	PAM            PAMConfig
	Timeouts       TimeoutConfig
	Sequence       SequenceConfig
	Facility       FacilityConfig
	CircuitBreaker CircuitBreakerConfig
}

// MLLPListener is one address the MLLP server (C9) accepts connections on,
// bound to the subscriber that owns inbound traffic from it.
type MLLPListener struct {
	Host          string
	Port          int
	SubscriberRef string
}

// MLLPConfig configures the MLLP server (C9).
type MLLPConfig struct {
	ListenAddresses []MLLPListener
}

// FileEndpoint is one directory the file poller (C9) watches.
type FileEndpoint struct {
	Dir                 string
	SubscriberRef       string
	PollIntervalSeconds int
	Extensions          []string
}

// FilePollerConfig configures the file-drop transport (C9).
type FilePollerConfig struct {
	Endpoints []FileEndpoint
}

// EmissionConfig tunes the outbox worker pool (C8).
type EmissionConfig struct {
	Concurrency   int
	QueueCapacity int
}

// PAMConfig carries the IHE PAM-FR profile toggle (C5).
type PAMConfig struct {
	StrictPAMFR bool
}

// TimeoutConfig bounds the MLLP client/server (C9).
type TimeoutConfig struct {
	AckTimeoutSeconds        int
	SocketIdleTimeoutSeconds int
}

// SequenceConfig tunes the sequence allocator's in-memory cache (C3).
type SequenceConfig struct {
	CacheSize int
}

// FacilityConfig names this gateway on outbound MSH segments (C7),
// replacing the original POC's hardcoded sending application literals.
type FacilityConfig struct {
	ApplicationName string
	FacilityCode    string
}

// CircuitBreakerConfig bounds the MLLP server's per-endpoint breaker (C9):
// after ConsecutiveErrorThreshold non-AA acknowledgments in a row, the
// endpoint refuses new frames for CooldownSeconds. Every non-AA ACK counts,
// whatever its cause; parse failures are not counted apart from other
// rejections.
type CircuitBreakerConfig struct {
	ConsecutiveErrorThreshold int
	CooldownSeconds           int
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}


type AuthConfig struct {
	KeycloakURL   string
	Realm         string
	ClientID      string
	ClientSecret  string
	JWTSecret     string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "platform"),
			Password: getEnv("DB_PASSWORD", "platform"),
			Database: getEnv("DB_NAME", "platform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			KeycloakURL:  getEnv("KEYCLOAK_URL", "http://localhost:8180"),
			Realm:        getEnv("KEYCLOAK_REALM", "serbia-gov"),
			ClientID:     getEnv("KEYCLOAK_CLIENT_ID", "platform"),
			ClientSecret: getEnv("KEYCLOAK_CLIENT_SECRET", ""),
			JWTSecret:    getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		MLLP: MLLPConfig{
			ListenAddresses: parseMLLPListeners(getEnv("MLLP_LISTEN_ADDRESSES", "")),
		},
		FilePoller: FilePollerConfig{
			Endpoints: parseFileEndpoints(getEnv("FILEPOLLER_ENDPOINTS", "")),
		},
		Emission: EmissionConfig{
			Concurrency:   getEnvInt("EMISSION_CONCURRENCY", 5),
			QueueCapacity: getEnvInt("EMISSION_QUEUE_CAPACITY", 1000),
		},
		PAM: PAMConfig{
			StrictPAMFR: getEnvBool("PAM_STRICT_PAM_FR", false),
		},
		Timeouts: TimeoutConfig{
			AckTimeoutSeconds:        getEnvInt("ACK_TIMEOUT_SECONDS", 30),
			SocketIdleTimeoutSeconds: getEnvInt("SOCKET_IDLE_TIMEOUT_SECONDS", 60),
		},
		Sequence: SequenceConfig{
			CacheSize: getEnvInt("SEQUENCE_CACHE_SIZE", 100),
		},
		Facility: FacilityConfig{
			ApplicationName: getEnv("FACILITY_APPLICATION_NAME", "GATEWAY"),
			FacilityCode:    getEnv("FACILITY_CODE", ""),
		},
		CircuitBreaker: CircuitBreakerConfig{
			ConsecutiveErrorThreshold: getEnvInt("CIRCUIT_BREAKER_ERROR_THRESHOLD", 20),
			CooldownSeconds:           getEnvInt("CIRCUIT_BREAKER_COOLDOWN_SECONDS", 60),
		},
	}, nil
}

// parseMLLPListeners reads "host:port:subscriberRef,host:port:subscriberRef"
// from MLLP_LISTEN_ADDRESSES; a single deployment rarely needs more than a
// handful of listeners, so a flat env var beats a config file for this.
func parseMLLPListeners(raw string) []MLLPListener {
	var out []MLLPListener
	for _, entry := range splitAndTrim(raw, ",") {
		parts := splitString(entry, ":")
		if len(parts) != 3 {
			continue
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		out = append(out, MLLPListener{Host: parts[0], Port: port, SubscriberRef: parts[2]})
	}
	return out
}

// parseFileEndpoints reads "dir:subscriberRef:pollSeconds:ext1|ext2,..." from
// FILEPOLLER_ENDPOINTS.
func parseFileEndpoints(raw string) []FileEndpoint {
	var out []FileEndpoint
	for _, entry := range splitAndTrim(raw, ",") {
		parts := splitString(entry, ":")
		if len(parts) != 4 {
			continue
		}
		seconds, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		out = append(out, FileEndpoint{
			Dir:                 parts[0],
			SubscriberRef:       parts[1],
			PollIntervalSeconds: seconds,
			Extensions:          splitAndTrim(parts[3], "|"),
		})
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range splitString(s, sep) {
		trimmed := trimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func splitString(s, sep string) []string {
	if s == "" {
		return nil
	}
	var result []string
	start := 0
	for i := 0; i <= len(s)-len(sep); i++ {
		if s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
