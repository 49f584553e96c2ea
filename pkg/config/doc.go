// Package config loads typed configuration structs from environment
// variables.
//
// Configuration is entirely environment-driven to simplify deployment across
// development, staging, and production. Structs declare their variables with
// `env` and `envDefault` tags; Load parses them, picking up a local .env file
// once per process for development convenience.
//
// # Usage
//
//	var mongoCfg mongo.Config
//	config.MustLoad(&mongoCfg)
//
//	var retention tracking.RetentionConfig
//	config.MustLoad(&retention)
package config
