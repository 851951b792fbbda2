// Package component manages the lifecycle of the long-running parts of a
// guard deployment. Components start in registration order and stop in
// reverse.
package component
