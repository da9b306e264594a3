package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	HTTP      HTTPConfig
	Catalog   CatalogConfig
	Thumbs    ThumbConfig
	Cache     CacheConfig
	Proxy     ProxyConfig
	Inventory InventoryConfig
	Secret    SecretConfig
	AccountDB AccountDBConfig
	Crawler   CrawlerConfig

	// Speed selects a preset for the catalog and thumbnail knobs (gentle, fast, extreme).
	Speed string `envconfig:"PROFILE_SPEED" default:""`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"rbx-valuation-api"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS" default:""`
}

// HTTPConfig holds upstream HTTP client settings.
type HTTPConfig struct {
	Timeout        Seconds `envconfig:"HTTP_TIMEOUT" default:"20"`
	ConnectTimeout Seconds `envconfig:"HTTP_CONNECT_TIMEOUT" default:"10"`
	ReadTimeout    Seconds `envconfig:"HTTP_READ_TIMEOUT" default:"20"`
	WriteTimeout   Seconds `envconfig:"HTTP_WRITE_TIMEOUT" default:"20"`
	PoolTimeout    Seconds `envconfig:"HTTP_POOL_TIMEOUT" default:"10"`
	MaxConnections int     `envconfig:"HTTP_MAX_CONNECTIONS" default:"100"`
	MaxKeepalive   int     `envconfig:"HTTP_MAX_KEEPALIVE" default:"20"`
	KeepaliveSecs  Seconds `envconfig:"HTTP_KEEPALIVE_SECS" default:"30"`
}

// CatalogConfig holds settings for the catalog details endpoint.
type CatalogConfig struct {
	Concurrency      int     `envconfig:"CATALOG_CONCURRENCY" default:"4"`
	BatchSize        int     `envconfig:"CATALOG_BATCH_SIZE" default:"100"`
	BaseDelayMS      int     `envconfig:"CATALOG_BASE_DELAY_MS" default:"350"`
	Retries          int     `envconfig:"CATALOG_RETRIES" default:"6"`
	RateLimitBackoff Seconds `envconfig:"CATALOG_RATE_LIMIT_BACKOFF" default:"0.5"`
}

// BaseDelay returns the minimum gap between two details requests.
func (c *CatalogConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// ThumbConfig holds thumbnail download settings.
type ThumbConfig struct {
	Concurrency      int    `envconfig:"THUMB_DL_CONCURRENCY" default:"8"`
	WriteReadyImages bool   `envconfig:"WRITE_READY_ITEM_IMAGES" default:"false"`
	Dir              string `envconfig:"THUMB_DIR" default:"./data/thumbnails"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type             string  `envconfig:"CACHE_TYPE" default:"disk"` // disk or redis
	Dir              string  `envconfig:"CACHE_DIR" default:"./data/cache"`
	MaxMB            int     `envconfig:"CACHE_MAX_MB" default:"256"`
	ProfileTTL       Seconds `envconfig:"PUBLIC_PROFILE_TTL" default:"1800"`
	InventoryTTL     Seconds `envconfig:"PUBLIC_INV_TTL" default:"900"`
	ResaleTTL        Seconds `envconfig:"RESALE_TTL" default:"3600"`
	RevenueCursorTTL Seconds `envconfig:"REVENUE_CURSOR_TTL" default:"3600"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// MaxBytes returns the disk cache size cap in bytes.
func (c *CacheConfig) MaxBytes() int64 {
	return int64(c.MaxMB) * 1024 * 1024
}

// MaxTTL returns the longest logical TTL of any cached class. Entries written
// longer ago than this are expired whatever their class.
func (c *CacheConfig) MaxTTL() time.Duration {
	longest := c.ProfileTTL.Duration()
	for _, ttl := range []Seconds{c.InventoryTTL, c.ResaleTTL, c.RevenueCursorTTL} {
		longest = max(longest, ttl.Duration())
	}
	return longest
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// ProxyConfig holds proxy pool sources.
type ProxyConfig struct {
	List string `envconfig:"PROXIES" default:""`
	File string `envconfig:"PROXIES_FILE" default:"proxies.txt"`
}

// InventoryConfig selects the asset types walked for every inventory.
type InventoryConfig struct {
	AssetTypes []int `envconfig:"INVENTORY_ASSET_TYPES" default:""`
}

// SecretConfig holds the symmetric key for stored session cookies.
type SecretConfig struct {
	FernetKey string `envconfig:"FERNET_KEY" default:""`
}

// AccountDBConfig holds settings for the linked-account key/value store.
type AccountDBConfig struct {
	Type string `envconfig:"ACCOUNT_DB_TYPE" default:"sqlite"` // sqlite, mysql, or postgres
	Path string `envconfig:"ACCOUNT_DB_PATH" default:"./data/accounts.db"`
	// MySQL / PostgreSQL settings
	Host     string `envconfig:"ACCOUNT_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"ACCOUNT_DB_PORT" default:"0"`
	Name     string `envconfig:"ACCOUNT_DB_NAME" default:"rbxvalue"`
	User     string `envconfig:"ACCOUNT_DB_USER" default:"root"`
	Password string `envconfig:"ACCOUNT_DB_PASS" default:""`
	SSLMode  string `envconfig:"ACCOUNT_DB_SSLMODE" default:"disable"`
}

// MySQLDSN returns the MySQL data source name.
func (d *AccountDBConfig) MySQLDSN() string {
	port := d.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, port, d.Name)
}

// PostgresDSN returns the PostgreSQL connection string.
func (d *AccountDBConfig) PostgresDSN() string {
	port := d.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, port, d.Name, d.SSLMode)
}

// CrawlerConfig holds defaults for the catalog crawler.
type CrawlerConfig struct {
	CSVPath    string   `envconfig:"CRAWLER_CSV_PATH" default:"./data/prices.csv"`
	IDsPath    string   `envconfig:"CRAWLER_IDS_PATH" default:"./data/catalog_ids.txt"`
	Keywords   []string `envconfig:"CRAWLER_KEYWORDS" default:""`
	AssetTypes []int    `envconfig:"CRAWLER_ASSET_TYPES" default:"8,41,42,43,44,45,46,47"`
	MaxPages   int      `envconfig:"CRAWLER_MAX_PAGES" default:"20"`
	SearchRPS  float64  `envconfig:"CRAWLER_SEARCH_RPS" default:"2"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.applySpeedProfile(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
