package main

import (
	"os"

	"github.com/solatis/smartfolder/cmd/smartfolder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
