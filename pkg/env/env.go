// Package env provides small helpers over process environment lookups.
package env

import "os"

// Get returns the value of key, or fallback when the variable is unset
// or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
