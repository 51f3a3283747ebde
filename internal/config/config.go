package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DefaultCountryCode replaces a single leading zero when
	// normalizing MSISDNs (local dial format).
	DefaultCountryCode string

	// DefaultTenantID is assumed when a request carries no tenant header.
	DefaultTenantID int64

	// TenantDatabaseURLs maps tenant IDs to dedicated DSNs
	// ("id=dsn;id=dsn"); tenants without an entry share the default pool.
	TenantDatabaseURLs map[int64]string

	// HeavyUserVisitThreshold latches the customer heavy-user flag.
	HeavyUserVisitThreshold int

	// RecentSessionCap bounds the per-customer recent session list.
	RecentSessionCap int

	// RecentSessionLookupLimit bounds FindRecentByIP results.
	RecentSessionLookupLimit int

	// CallbackRatePerSecond / CallbackBurst gate the DIMOCO callback path.
	CallbackRatePerSecond float64
	CallbackBurst         int

	// ReconcileInterval is the background replay loop period, seconds.
	ReconcileInterval int
	// ReconcileWindowHours bounds how far back replay scans.
	ReconcileWindowHours int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "kiosk"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kiosk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		DefaultCountryCode: getenv("DEFAULT_COUNTRY_CODE", "49"),
		DefaultTenantID:    getenvInt64("DEFAULT_TENANT", 0),
		TenantDatabaseURLs: parseTenantDSNs(getenv("TENANT_DATABASE_URLS", "")),

		HeavyUserVisitThreshold:  getenvInt("HEAVY_USER_VISIT_THRESHOLD", 3),
		RecentSessionCap:         getenvInt("RECENT_SESSION_CAP", 100),
		RecentSessionLookupLimit: getenvInt("RECENT_SESSION_LOOKUP_LIMIT", 20),

		CallbackRatePerSecond: getenvFloat("CALLBACK_RATE_PER_SECOND", 50),
		CallbackBurst:         getenvInt("CALLBACK_BURST", 100),

		ReconcileInterval:    getenvInt("RECONCILE_INTERVAL_SECONDS", 300),
		ReconcileWindowHours: getenvInt("RECONCILE_WINDOW_HOURS", 48),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// parseTenantDSNs parses "id=dsn;id=dsn" into a lookup map.
func parseTenantDSNs(raw string) map[int64]string {
	out := make(map[int64]string)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(pair[:idx]), 10, 64)
		if err != nil {
			continue
		}
		dsn := strings.TrimSpace(pair[idx+1:])
		if dsn == "" {
			continue
		}
		out[id] = dsn
	}
	return out
}
