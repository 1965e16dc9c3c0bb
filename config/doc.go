// Package config loads the service configuration from a YAML file
// with environment variable overrides. Load never mutates the file;
// defaults are applied in memory and validation runs once at startup
// so a misconfiguration fails the boot, not a pipeline run.
package config
