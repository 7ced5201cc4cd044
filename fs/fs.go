// Package appfs exposes the files embedded in the binary: SQL migrations and assets.
package appfs

import "embed"

// "all:" keeps the "_"-prefixed email layouts.
//
//go:embed migrations all:assets
var FS embed.FS
