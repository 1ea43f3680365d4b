package main

import "github.com/vietddude/erc20-detector/internal/cli"

func main() {
	cli.Execute()
}
