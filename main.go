package main

import "github.com/temporal-agent/temporal-agent-mcp/cmd"

func main() {
	cmd.Execute()
}
