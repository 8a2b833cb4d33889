// Package output renders shimctl results as human or JSON text.
package output

// Printer renders output to stdout.
type Printer interface {
	Print(v any) error
}
