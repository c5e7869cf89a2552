// Package domain contains the core domain model for ttrack.
//
// The domain is persistence-agnostic: it does not depend on YAML, the filesystem
// or the CLI. The file store and the tracking API map into and from these types.
package domain
