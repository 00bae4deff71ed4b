// Command llmproxy runs the multi-provider LLM reverse proxy.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hllvc/llmproxy/cmd/llmproxy/commands"
)

func main() {
	if err := commands.Execute(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
