// Package common holds process-wide helpers shared by all binaries.
package common

// Version is set at build time via -ldflags "-X .../common.Version=...".
var Version = "dev"

// PackageName is used as the metrics namespace and default log service name.
const PackageName = "credential_registry"
