package main

import "vendorrisk/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
