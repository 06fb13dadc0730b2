// Command timber maintains a LevelDB-backed commitment tree: it appends
// leaves, serves sibling paths and manages the proving keys of the
// sibling-path circuit.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
