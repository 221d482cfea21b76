package main

import (
	"os"

	"github.com/sitechat/relay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
