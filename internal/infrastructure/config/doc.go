// Package config handles loading and validating the gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TGGATEWAY_* environment variables
//   - Validation of required fields and the topic set
//
// The broker password and the Telegram bot token should be supplied through
// the environment; the config file should have restricted permissions (0600).
//
// Configuration is loaded once at startup and treated as read-only afterwards.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Topics.Outbound)
package config
