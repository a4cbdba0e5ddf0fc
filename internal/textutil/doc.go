// Package textutil provides filename sanitization and display helpers shared
// by the render output naming and the CLI.
package textutil
