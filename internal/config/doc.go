// Package config loads taskflow settings from defaults, an optional
// config.yaml, a .env file and TASKFLOW_* environment variables, and
// validates the result before any component is constructed.
package config
