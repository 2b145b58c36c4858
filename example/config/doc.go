// Package config provides Postgres connection configuration for the demo
// application and the integration tests, one constructor per supported
// database adapter.
package config
