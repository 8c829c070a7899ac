// Package config handles loading and validating mqtt-cli configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The file is optional. When MQTT_CLI_CONFIG is unset, ~/.mqtt-cli/config.yaml
// is read if present and the built-in defaults are used otherwise.
//
// Usage:
//
//	cfg, err := config.LoadDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Defaults.Host)
package config
