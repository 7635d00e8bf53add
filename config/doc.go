// Package config loads service configuration from YAML files and the
// environment.
//
// Configuration is layered: a config.yml file provides the base, a .env file
// (if present) is loaded into the process environment, and environment
// variables override everything. After loading, ApplyDefaults fills unset
// fields and Validate checks the result.
//
//	var cfg config.Config
//	err := config.Load("inferkit", &cfg)
//	cfg.ApplyDefaults()
//	err = cfg.Validate()
package config
