package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Analysis backends
const (
	AnalysisHTTP   = "http"
	AnalysisOpenAI = "openai"
)

// Persistence backends
const (
	PersistenceHTTP     = "http"
	PersistencePostgres = "postgres"
	PersistenceNone     = "none"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Endpoints   EndpointsConfig
	Analysis    AnalysisConfig
	OpenAI      OpenAIConfig
	Persistence PersistenceConfig
	Storage     StorageConfig
	Retailer    RetailerConfig
	Notes       NotesConfig
	Cart        CartConfig
	Logging     LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	CORSOrigins     []string
}

// EndpointsConfig holds the external analysis, persistence and
// product-search endpoints
type EndpointsConfig struct {
	Analysis      string
	Persistence   string
	ProductSearch string
	Timeout       time.Duration
}

// AnalysisConfig selects the analyzer
type AnalysisConfig struct {
	Backend string
}

// OpenAIConfig holds Azure OpenAI configuration
type OpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
}

// PersistenceConfig selects where analysis results are stored
type PersistenceConfig struct {
	Backend       string
	DatabaseURL   string
	EncryptionKey string
}

// StorageConfig holds Azure Blob Storage configuration. Image archiving is
// disabled when no credentials are set.
type StorageConfig struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	Container        string
}

// Enabled reports whether blob credentials are configured
func (s StorageConfig) Enabled() bool {
	return s.ConnectionString != "" || (s.AccountName != "" && s.AccountKey != "")
}

// RetailerConfig describes the pharmacy purchase links point to
type RetailerConfig struct {
	Name           string
	Domain         string
	SearchPageBase string
	WebSearchBase  string
}

// NotesConfig holds purchase note configuration
type NotesConfig struct {
	TTL time.Duration
}

// CartConfig holds the mock price range of new cart lines
type CartConfig struct {
	MinPrice int
	MaxPrice int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)
	v.SetDefault("server.ratelimitrps", 20.0)
	v.SetDefault("server.ratelimitburst", 40)
	v.SetDefault("server.corsorigins", []string{"*"})

	// Endpoint defaults
	v.SetDefault("endpoints.analysis", "http://localhost:5000/api/analyze-prescription")
	v.SetDefault("endpoints.persistence", "http://localhost:5000/api/save-prescription")
	v.SetDefault("endpoints.productsearch", "http://localhost:5000/api/check-apollo-search")
	v.SetDefault("endpoints.timeout", 60*time.Second)

	v.SetDefault("analysis.backend", AnalysisHTTP)
	v.SetDefault("persistence.backend", PersistenceHTTP)

	v.SetDefault("storage.container", "prescription-images")

	// Retailer defaults
	v.SetDefault("retailer.name", "Apollo Pharmacy")
	v.SetDefault("retailer.domain", "apollopharmacy.in")
	v.SetDefault("retailer.searchpagebase", "https://www.apollopharmacy.in/search-medicines/")
	v.SetDefault("retailer.websearchbase", "https://www.google.com/search")

	v.SetDefault("notes.ttl", 6*time.Second)

	v.SetDefault("cart.minprice", 50)
	v.SetDefault("cart.maxprice", 500)

	v.SetDefault("logging.level", "info")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")
	v.BindEnv("server.shutdowntimeout", "SHUTDOWN_TIMEOUT")
	v.BindEnv("server.ratelimitrps", "RATE_LIMIT_RPS")
	v.BindEnv("server.ratelimitburst", "RATE_LIMIT_BURST")
	v.BindEnv("server.corsorigins", "CORS_ORIGINS")

	// External endpoints
	v.BindEnv("endpoints.analysis", "ANALYSIS_ENDPOINT")
	v.BindEnv("endpoints.persistence", "PERSISTENCE_ENDPOINT")
	v.BindEnv("endpoints.productsearch", "PRODUCT_SEARCH_ENDPOINT")
	v.BindEnv("endpoints.timeout", "ENDPOINT_TIMEOUT")

	v.BindEnv("analysis.backend", "ANALYSIS_BACKEND")

	// Azure OpenAI
	v.BindEnv("openai.endpoint", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("openai.apikey", "AZURE_OPENAI_API_KEY")
	v.BindEnv("openai.deployment", "AZURE_OPENAI_DEPLOYMENT")

	// Persistence
	v.BindEnv("persistence.backend", "PERSISTENCE_BACKEND")
	v.BindEnv("persistence.databaseurl", "DATABASE_URL")
	v.BindEnv("persistence.encryptionkey", "ENCRYPTION_KEY")

	// Azure Storage
	v.BindEnv("storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")
	v.BindEnv("storage.connectionstring", "AZURE_STORAGE_CONNECTION_STRING")
	v.BindEnv("storage.container", "AZURE_STORAGE_CONTAINER")

	// Retailer
	v.BindEnv("retailer.name", "RETAILER_NAME")
	v.BindEnv("retailer.domain", "RETAILER_DOMAIN")
	v.BindEnv("retailer.searchpagebase", "RETAILER_SEARCH_PAGE_BASE")
	v.BindEnv("retailer.websearchbase", "RETAILER_WEB_SEARCH_BASE")

	v.BindEnv("notes.ttl", "NOTE_TTL")

	v.BindEnv("cart.minprice", "CART_MIN_PRICE")
	v.BindEnv("cart.maxprice", "CART_MAX_PRICE")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Endpoints.ProductSearch == "" {
		return fmt.Errorf("endpoints.productsearch is required")
	}

	switch c.Analysis.Backend {
	case AnalysisHTTP:
		if c.Endpoints.Analysis == "" {
			return fmt.Errorf("endpoints.analysis is required for the http analysis backend")
		}
	case AnalysisOpenAI:
		if c.OpenAI.Endpoint == "" || c.OpenAI.APIKey == "" || c.OpenAI.Deployment == "" {
			return fmt.Errorf("openai endpoint, apikey and deployment are required for the openai analysis backend")
		}
	default:
		return fmt.Errorf("unknown analysis.backend %q", c.Analysis.Backend)
	}

	switch c.Persistence.Backend {
	case PersistenceHTTP:
		if c.Endpoints.Persistence == "" {
			return fmt.Errorf("endpoints.persistence is required for the http persistence backend")
		}
	case PersistencePostgres:
		if c.Persistence.DatabaseURL == "" {
			return fmt.Errorf("persistence.databaseurl is required for the postgres persistence backend")
		}
	case PersistenceNone:
	default:
		return fmt.Errorf("unknown persistence.backend %q", c.Persistence.Backend)
	}

	if c.Storage.Enabled() && c.Storage.Container == "" {
		return fmt.Errorf("storage.container is required when blob storage is configured")
	}

	if c.Notes.TTL <= 0 {
		return fmt.Errorf("notes.ttl must be positive")
	}

	if c.Cart.MinPrice < 0 || c.Cart.MaxPrice <= c.Cart.MinPrice {
		return fmt.Errorf("cart price range [%d, %d) is empty", c.Cart.MinPrice, c.Cart.MaxPrice)
	}

	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("server.ratelimitrps must be positive")
	}

	return nil
}
