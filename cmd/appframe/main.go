package main

import (
	"context"

	"github.com/penn-automate/appframe-go/cmd/appframe/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
