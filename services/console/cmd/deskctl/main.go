// Command deskctl signs an operator in to the library API and prints borrow
// reports from the terminal.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
