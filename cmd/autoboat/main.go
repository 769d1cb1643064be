package main

import (
	"fmt"
	"os"

	"github.com/teranos/autoboat/cmd/autoboat/commands"
	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
)

func main() {
	defer logger.Cleanup()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
