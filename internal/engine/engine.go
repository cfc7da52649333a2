// Package engine runs the OpenET export pipeline.
//
// The work is split across a few files:
//   - runner.go: tile selection, input loading and per tile export tasks
//   - factory.go: store, state and notifier construction from config
//   - priority.go: export task ordering
//   - safegroup.go: panic safe goroutine groups
package engine
