package main

import (
	"context"

	"bedwatch-backend/cmd/bedwatch-cli/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
