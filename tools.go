//go:build tools

// Package tools tracks development tool dependencies in go.mod.
// Install with: make tools
package tools

import (
	// Linting and formatting
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/tools/cmd/goimports"

	// Mock generation for pkg/storage
	_ "github.com/golang/mock/mockgen"

	// Test runner used in CI
	_ "gotest.tools/gotestsum"

	// Security scanning
	_ "github.com/securego/gosec/v2/cmd/gosec"

	// Profiling long pipeline runs (openet run --cpuprofile)
	_ "github.com/google/pprof"
)
