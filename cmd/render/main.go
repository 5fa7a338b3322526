// Command render prints the chat HTML for an upstream response read from a
// file or stdin.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
