// Command copilotctl runs the copilot pipeline from a terminal and inspects
// its audit trail and runtime settings.
package main

import "os"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
