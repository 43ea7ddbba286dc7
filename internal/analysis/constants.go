// Package analysis recovers strings, references to them and the functions
// holding those references from ARM64 ELF images.
package analysis

const (
	// MaxStringLength caps a single extracted string.
	MaxStringLength = 4096

	// DefaultMinStringLength is the shortest run reported as a string.
	DefaultMinStringLength = 4

	// SearchWindowSmall is how many instructions an ADRP page stays live in
	// its register while waiting for the ADD that completes the address.
	SearchWindowSmall = 32
)
