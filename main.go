package main

import "github.com/agentic-research/lsf/cmd"

func main() {
	cmd.Execute()
}
