package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-recon.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Project and region identifiers for the cloud deployment.
	ProjectID string `yaml:"project_id" env:"PROJECT_ID" env-default:""`
	Region    string `yaml:"region" env:"REGION" env-default:"europe-west2"`

	Session        SessionConfig        `yaml:"session"`
	Warehouse      WarehouseConfig      `yaml:"warehouse"`
	LLM            LLMConfig            `yaml:"llm"`
	Storage        StorageConfig        `yaml:"storage"`
	Mappings       MappingsConfig       `yaml:"mappings"`
	Sources        SourcesConfig        `yaml:"sources"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Cache          CacheConfig          `yaml:"cache"`
}

// SessionConfig controls the signed cookie that carries wizard state.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name" env:"SESSION_COOKIE_NAME" env-default:"ekaya_recon_wizard"`
	Secret     string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
	MaxAgeSecs int    `yaml:"max_age_secs" env:"SESSION_MAX_AGE_SECS" env-default:"3600"`
}

// WarehouseConfig selects and configures the warehouse adapter.
type WarehouseConfig struct {
	Type     string `yaml:"type" env:"WAREHOUSE_TYPE" env-default:"bigquery"`
	Project  string `yaml:"project" env:"WAREHOUSE_PROJECT" env-default:""` // BigQuery billing project; defaults to ProjectID
	Location string `yaml:"location" env:"WAREHOUSE_LOCATION" env-default:""`
	Host     string `yaml:"host" env:"WAREHOUSE_HOST" env-default:""`
	DBPort   int    `yaml:"port" env:"WAREHOUSE_PORT" env-default:"0"`
	User     string `yaml:"user" env:"WAREHOUSE_USER" env-default:""`
	Password string `yaml:"-" env:"WAREHOUSE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"WAREHOUSE_SSL_MODE" env-default:""`
	// MaxRows bounds NL-to-SQL result sets.
	MaxRows int `yaml:"max_rows" env:"WAREHOUSE_MAX_ROWS" env-default:"1000"`
	// PreviewLimit bounds exploratory table browsing.
	PreviewLimit int `yaml:"preview_limit" env:"WAREHOUSE_PREVIEW_LIMIT" env-default:"100"`
}

// LLMConfig configures the hosted model used for SQL generation.
type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint       string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"500"`
	MaxRetries     int     `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"3"`
	RetryDelayMS   int     `yaml:"retry_delay_ms" env:"LLM_RETRY_DELAY_MS" env-default:"1000"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
}

// StorageConfig selects the object store holding mapping files.
type StorageConfig struct {
	Backend  string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"gcs"` // gcs, s3, file
	Region   string `yaml:"region" env:"STORAGE_REGION" env-default:""`
	Endpoint string `yaml:"endpoint" env:"STORAGE_ENDPOINT" env-default:""` // S3-compatible endpoint override
	Root     string `yaml:"root" env:"STORAGE_ROOT" env-default:"."`        // file backend root directory
}

// MappingsConfig locates the two reference mapping files.
type MappingsConfig struct {
	// Location is "bucket" or "bucket/prefix".
	Location     string `yaml:"location" env:"MAPPINGS_LOCATION" env-default:"stage_data1"`
	SiebelFile   string `yaml:"siebel_file" env:"MAPPINGS_SIEBEL_FILE" env-default:"Mapping files/siebel_mapping.txt"`
	AntilliaFile string `yaml:"antillia_file" env:"MAPPINGS_ANTILLIA_FILE" env-default:"Mapping files/antillia_mapping.txt"`
	SampleRows   int    `yaml:"sample_rows" env:"MAPPINGS_SAMPLE_ROWS" env-default:"5"`
}

// SourcesConfig names the warehouse tables read by a reconciliation run.
type SourcesConfig struct {
	SiebelAccounts   string `yaml:"siebel_accounts" env:"SOURCE_SIEBEL_ACCOUNTS" env-default:"telecom-data-lake.o_siebel.siebel_accounts"`
	SiebelAssets     string `yaml:"siebel_assets" env:"SOURCE_SIEBEL_ASSETS" env-default:"telecom-data-lake.o_siebel.siebel_assets"`
	SiebelOrders     string `yaml:"siebel_orders" env:"SOURCE_SIEBEL_ORDERS" env-default:"telecom-data-lake.o_siebel.siebel_orders"`
	BillingAccounts  string `yaml:"billing_accounts" env:"SOURCE_BILLING_ACCOUNTS" env-default:"telecom-data-lake.gibantillia.billing_accounts"`
	BillingProducts  string `yaml:"billing_products" env:"SOURCE_BILLING_PRODUCTS" env-default:"telecom-data-lake.gibantillia.billing_products"`
	ProductNameField string `yaml:"product_name_field" env:"SOURCE_PRODUCT_NAME_FIELD" env-default:"product_name"`
}

// ReconciliationConfig tunes the completeness and accuracy controls.
type ReconciliationConfig struct {
	// ProductMatch is "exact" (case-sensitive) or "fold" (trimmed, case-insensitive).
	ProductMatch         string   `yaml:"product_match" env:"RECON_PRODUCT_MATCH" env-default:"exact"`
	MaxRows              int      `yaml:"max_rows" env:"RECON_MAX_ROWS" env-default:"500000"`
	AvailableStatuses    []string `yaml:"available_statuses" env:"RECON_AVAILABLE_STATUSES" env-separator:"," env-default:"active,completed,complete"`
	BillingAmountColumns []string `yaml:"billing_amount_columns" env:"RECON_BILLING_AMOUNT_COLUMNS" env-separator:"," env-default:"billing_amount,charge_amount"`
	AssetAmountColumns   []string `yaml:"asset_amount_columns" env:"RECON_ASSET_AMOUNT_COLUMNS" env-separator:"," env-default:"asset_amount,maintenance_cost"`
	TopExceptionsLimit   int      `yaml:"top_exceptions_limit" env:"RECON_TOP_EXCEPTIONS_LIMIT" env-default:"10"`
	ControlsFile         string   `yaml:"controls_file" env:"RECON_CONTROLS_FILE" env-default:""`
}

// CacheConfig time-boxes source tables and mapping files. Zero disables caching.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS" env-default:"0"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from the given YAML path with environment
// variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// normalize fills derived defaults and validates enumerated fields.
func (c *Config) normalize() error {
	if c.Warehouse.Project == "" {
		c.Warehouse.Project = c.ProjectID
	}
	if c.Warehouse.Location == "" {
		c.Warehouse.Location = c.Region
	}

	c.Reconciliation.ProductMatch = strings.ToLower(strings.TrimSpace(c.Reconciliation.ProductMatch))
	switch c.Reconciliation.ProductMatch {
	case "exact", "fold":
	default:
		return fmt.Errorf("reconciliation.product_match must be exact or fold, got %q", c.Reconciliation.ProductMatch)
	}

	switch c.Storage.Backend {
	case "gcs", "s3", "file":
	default:
		return fmt.Errorf("storage.backend must be gcs, s3 or file, got %q", c.Storage.Backend)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}

	if c.Env != "local" && c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required when env is %q", c.Env)
	}

	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	if c.Mappings.SampleRows <= 0 {
		c.Mappings.SampleRows = 5
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// AdapterConfig flattens the warehouse settings into the generic map that
// warehouse adapter factories accept.
func (w *WarehouseConfig) AdapterConfig() map[string]any {
	m := map[string]any{}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("project", w.Project)
	set("location", w.Location)
	set("host", w.Host)
	set("user", w.User)
	set("password", w.Password)
	set("database", w.Database)
	set("ssl_mode", w.SSLMode)
	if w.DBPort > 0 {
		m["port"] = w.DBPort
	}
	return m
}
