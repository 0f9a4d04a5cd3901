package main

import "github.com/agentic-research/agentsync/cmd"

func main() {
	cmd.Execute()
}
