// Command courier runs the templated email service and offers operational
// commands against the same configuration.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(cli{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
