// Package transform defines the Transform Plugin contract used by pipeline
// stages, the registry that maps a stage type to its factory, and the gRPC
// client used to reach out-of-process plugins. Runner stages create one
// instance per run, so per-run state never leaks between runs.
package transform
