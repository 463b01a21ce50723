package web

import (
	"embed"
)

// Templates for the run browser UI.
//
//go:embed templates
var Assets embed.FS
