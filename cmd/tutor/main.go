// Command tutor runs adaptive practice sessions from the command line or
// as an HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	a := &app{}
	if err := execute(a, newRootCmd(a)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the command tree, then releases whatever the command opened,
// also when it failed.
func execute(a *app, root *cobra.Command) error {
	err := root.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}
