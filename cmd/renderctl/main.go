package main

import (
	"fmt"
	"os"

	"github.com/ccheshirecat/renderd/internal/cli/standard"
)

func main() {
	if err := standard.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
