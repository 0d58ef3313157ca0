// cmd/cli/main.go
package main

import (
	"os"

	"github.com/pricetax/fiscaliva/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
