package mssql

import (
	"fmt"
	"net/url"
	"strconv"
)

// Config contains SQL Server connection options. Only SQL authentication is
// supported.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	if host, ok := config["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if username, ok := config["username"].(string); ok {
		cfg.Username = username
	} else if user, ok := config["user"].(string); ok {
		cfg.Username = user
	} else {
		return nil, fmt.Errorf("username is required for SQL authentication")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	// ssl_mode "disable" maps to encrypt=false so one warehouse config block
	// works for both SQL adapters.
	if sslMode, ok := config["ssl_mode"].(string); ok && sslMode == "disable" {
		cfg.Encrypt = false
	}
	if encrypt, ok := config["encrypt"].(bool); ok {
		cfg.Encrypt = encrypt
	}
	if trust, ok := config["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}

	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required for SQL authentication")
	}
	return nil
}

// ConnectionString renders cfg as a sqlserver:// URL.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		query.Encode(),
	)
}
