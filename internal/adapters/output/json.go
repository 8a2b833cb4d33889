package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONPrinter prints any result as indented JSON on stdout, one
// document per Print call. Watch mode emits a stream of documents
// rather than an array.
type JSONPrinter struct{}

// Print renders one JSON document.
func (JSONPrinter) Print(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(payload))
	return err
}
