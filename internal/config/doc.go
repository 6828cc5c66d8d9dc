// Package config loads mcg configuration.
//
// Priority, lowest first: defaults, YAML file, .env file, MCG_* environment
// variables. Nested fields map to env keys by joining env tags with "_", so
// store.sync_writes is MCG_STORE_SYNC_WRITES.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("mcg.yaml").
//	    WithEnvFile(".env").
//	    Load()
package config
