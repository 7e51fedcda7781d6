package main

import (
	"context"
	"os"

	"github.com/dukex/flowstate/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowstate-api",
		Usage:                 "Accept workflow triggers and approval decisions over HTTP",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewImportCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("flowstate-api").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
