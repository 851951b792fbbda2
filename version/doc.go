// Package version carries the build version of the guard binaries.
//
// Version, commit, branch and build time are set with -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/depguard/version.Version=1.0.0" ./cmd/guard-admin
//
// Anything left unset falls back to the module build info.
package version
