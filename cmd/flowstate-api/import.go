package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowstate/pkg/cmd"
	"github.com/dukex/flowstate/pkg/graph"
	"github.com/dukex/flowstate/pkg/log"
	"github.com/dukex/flowstate/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

// NewImportCommand stores diagram documents, replacing earlier versions with the same id.
func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Import diagram documents (YAML or JSON)",
		ArgsUsage: "FILE...",
		Flags:     append([]cli.Flag{databaseFlag()}, logFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("import")

			paths := command.Args().Slice()
			if len(paths) == 0 {
				return errors.New("at least one diagram file is required")
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			return importDiagrams(ctx, graph.NewLoader(), persistence, paths, logger)
		},
	}
}

func importDiagrams(ctx context.Context, loader *graph.Loader, p persistence.Persistence, paths []string, logger *slog.Logger) error {
	for _, path := range paths {
		diagram, err := loader.LoadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		err = graph.Import(ctx, p, diagram)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		logger.InfoContext(ctx, "Diagram imported",
			"path", path,
			"diagram_id", diagram.ID,
			"nodes", len(diagram.Nodes),
			"connections", len(diagram.Connections),
		)
	}

	return nil
}
