package main

import "github.com/deploymenttheory/go-bstore/cmd"

func main() {
	cmd.Execute()
}
