// Command syncd runs the shared-list synchronization server.
package main

import "github.com/meshline/syncd/internal/cli"

func main() {
	cli.Execute()
}
