package main

import (
	"os"

	"github.com/solatis/healthsignals/cmd/healthsignals/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
