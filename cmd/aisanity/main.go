package main

import (
	"fmt"
	"os"

	"github.com/aisanity/aisanity/cmd/aisanity/cmd"
	aerrors "github.com/aisanity/aisanity/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, aerrors.UserMessage(err))
		os.Exit(aerrors.ExitCode(err))
	}
}
