package main

import (
	"os"

	"github.com/TheRealDxRed/backtesting/cmd/rangetrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
