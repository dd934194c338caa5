package main

import (
	"fmt"
	"os"

	"github.com/trakkie-id/paynow/config"
)

func main() {
	if err := config.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
