// Command replaydesk serves edition-aware replay pages for archived
// snapshots.
//
//	replaydesk serve --config replaydesk.yaml
//	replaydesk resolve --edition 2 https://example.gov/about
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
