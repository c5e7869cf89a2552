package main

import "github.com/tinytrack/ttrack/internal/cli"

func main() {
	cli.Execute()
}
