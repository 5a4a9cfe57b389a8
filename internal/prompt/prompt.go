// Package prompt builds the text prompt sent to the image backend for a
// live region.
package prompt

import "strings"

const (
	// Fallback is used when a region has no prompt of its own.
	Fallback = "A random image that is safe for work and not surprising—something boring like a city or shoe watercolor"
	// Qualifier is appended to every user prompt.
	Qualifier = " hd award-winning impressive"
)

// Compose returns the backend prompt for a region name.
func Compose(name string) string {
	if strings.TrimSpace(name) == "" {
		return Fallback
	}
	return name + Qualifier
}
