package main

import (
	"os"

	"github.com/mozilla/gecko-dev-sub036/internal/server"
)

func main() {
	os.Exit(server.Main(os.Args[1:]))
}
