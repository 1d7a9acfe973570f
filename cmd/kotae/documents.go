package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
)

var (
	ownerFlag  string
	outputFlag string
	ingestFlag bool
)

var importCmd = &cobra.Command{
	Use:   "import --owner <id> <file>...",
	Short: "Upload local files as documents",
	Long: `Stores each file as a new document for the owner and, unless --ingest=false,
ingests it before returning. Runs against the local database; stop the server
first when it uses the same SQLite file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest --owner <id> <document-id>...",
	Short: "Ingest (or re-ingest) stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	for _, c := range []*cobra.Command{importCmd, ingestCmd} {
		c.Flags().StringVar(&ownerFlag, "owner", os.Getenv("KOTAE_OWNER"), "owner id (default $KOTAE_OWNER)")
		c.Flags().StringVar(&outputFlag, "output", "text", "output format: text or json")
	}
	importCmd.Flags().BoolVar(&ingestFlag, "ingest", true, "ingest each file after upload")
	rootCmd.AddCommand(importCmd, ingestCmd)
}

// documentRunner opens the local components and runs fn for each argument,
// printing every resulting document. It fails when any argument failed.
func documentRunner(cmd *cobra.Command, args []string, fn func(ctx context.Context, c *Components, arg string) (*models.Document, error)) error {
	if ownerFlag == "" {
		return fmt.Errorf("--owner is required")
	}
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	failed := 0
	for _, arg := range args {
		doc, err := fn(ctx, components, arg)
		if doc != nil {
			_ = cli.WriteDocument(cmd.OutOrStdout(), doc, format)
		}
		switch {
		case err != nil:
			failed++
			cmd.PrintErrf("%s: %v\n", arg, err)
		case doc != nil && doc.Status == models.StatusFailed:
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d failed", failed, len(args))
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	return documentRunner(cmd, args, func(ctx context.Context, c *Components, path string) (*models.Document, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc, err := c.Pipeline.Upload(ctx, ownerFlag, filepath.Base(path), data)
		if err != nil || !ingestFlag {
			return doc, err
		}
		ingested, err := c.Pipeline.Ingest(ctx, ownerFlag, doc.ID)
		if ingested != nil {
			doc = ingested
		}
		return doc, err
	})
}

func runIngest(cmd *cobra.Command, args []string) error {
	return documentRunner(cmd, args, func(ctx context.Context, c *Components, id string) (*models.Document, error) {
		doc, err := c.Pipeline.Ingest(ctx, ownerFlag, id)
		if err != nil {
			if current, getErr := c.Pipeline.Get(ctx, ownerFlag, id); getErr == nil {
				return current, err
			}
		}
		return doc, err
	})
}
