// Package assets provides embedded static assets for the application.
package assets

import (
	_ "embed"
)

// ExampleScene is a small scene with one live region drawn as a city
// skyline. `drawfast init` writes it out as a starting point.
//
//go:embed scenes/example.json
var ExampleScene []byte
