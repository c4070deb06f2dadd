// Package config provides YAML configuration loading and validation for the
// voice chat client. Each section validates itself so a bad field names the
// section it lives in.
package config
