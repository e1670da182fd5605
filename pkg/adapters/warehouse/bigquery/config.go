package bigquery

import "fmt"

// Config contains BigQuery connection options. Credentials come from
// Application Default Credentials unless CredentialsFile is set.
type Config struct {
	Project         string
	Location        string
	CredentialsFile string
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{}

	if project, ok := config["project"].(string); ok && project != "" {
		cfg.Project = project
	} else {
		return nil, fmt.Errorf("project is required")
	}

	if location, ok := config["location"].(string); ok {
		cfg.Location = location
	}

	if creds, ok := config["credentials_file"].(string); ok {
		cfg.CredentialsFile = creds
	}

	return cfg, nil
}
