// Command drpcd is a reference server and client for the drpc
// protocol: drpcd serve runs an echo-style accept loop over TCP,
// drpcd client dials it and invokes one RPC.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
