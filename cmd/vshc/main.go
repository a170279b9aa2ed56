package main

import "github.com/entomo-labs/gdhcn-validator-go/app/internal/cli"

func main() {
	cli.Execute()
}
