// Package bootstrap runs a guard process: typed configuration, component
// lifecycle, startup and shutdown hooks, and graceful shutdown on SIGINT or
// SIGTERM.
package bootstrap
