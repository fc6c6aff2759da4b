// Command crawler ingests tracked accounts' posts and reply threads from
// twitterapi.io into a relational store.
//
// Usage:
//
//	crawler migrate
//	crawler suggest <username>...
//	crawler run
//	crawler stats
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
