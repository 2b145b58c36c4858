// Package enginehelper provides shared setup for the engine integration
// tests: adapter selection via the ADAPTER_TYPE environment variable,
// schema application, and table cleanup between tests.
package enginehelper
