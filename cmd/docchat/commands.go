package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docchat/internal/models"
	"docchat/internal/pipeline"
)

// openFunc builds the service for one command run and returns its cleanup.
type openFunc func(ctx context.Context) (*pipeline.Service, func(), error)

func newRootCmd(open openFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents from the command line",
		SilenceUsage: true,
	}
	run := func(fn func(ctx context.Context, svc *pipeline.Service, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return fn(cmd.Context(), svc, cmd.OutOrStdout(), args)
		}
	}

	session := &cobra.Command{
		Use:   "session",
		Short: "Create a new chat session",
		Args:  cobra.NoArgs,
		RunE: run(func(_ context.Context, svc *pipeline.Service, out io.Writer, _ []string) error {
			sess, err := svc.CreateSession()
			if err != nil {
				return err
			}
			return printJSON(out, sess)
		}),
	}

	ingest := &cobra.Command{
		Use:   "ingest <session-id> <file>...",
		Short: "Replace the documents of a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: run(func(ctx context.Context, svc *pipeline.Service, out io.Writer, args []string) error {
			files := make([]models.UploadedFile, 0, len(args)-1)
			for _, path := range args[1:] {
				f, err := readFile(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}
			res, err := svc.Ingest(ctx, args[0], files)
			if err != nil {
				return err
			}
			return printJSON(out, res)
		}),
	}

	ask := &cobra.Command{
		Use:   "ask <session-id> <question>...",
		Short: "Ask a question about the session's documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: run(func(ctx context.Context, svc *pipeline.Service, out io.Writer, args []string) error {
			question := strings.TrimSpace(strings.Join(args[1:], " "))
			if question == "" {
				return fmt.Errorf("question is required")
			}
			ans, err := svc.Ask(ctx, args[0], question)
			if err != nil {
				return err
			}
			return printJSON(out, ans)
		}),
	}

	analyze := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Extract metadata from a document",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc *pipeline.Service, out io.Writer, args []string) error {
			f, err := readFile(args[0])
			if err != nil {
				return err
			}
			meta, err := svc.Analyze(ctx, f)
			if err != nil {
				return err
			}
			return printJSON(out, meta)
		}),
	}

	compare := &cobra.Command{
		Use:   "compare <reference> <actual>",
		Short: "Compare two documents page by page",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, svc *pipeline.Service, out io.Writer, args []string) error {
			reference, err := readFile(args[0])
			if err != nil {
				return err
			}
			actual, err := readFile(args[1])
			if err != nil {
				return err
			}
			records, err := svc.Compare(ctx, reference, actual)
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{"records": records})
		}),
	}

	var keep int
	evict := &cobra.Command{
		Use:   "evict",
		Short: "Delete all but the newest sessions",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, svc *pipeline.Service, out io.Writer, _ []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must be non-negative")
			}
			res, err := svc.Evict(ctx, keep)
			if perr := printJSON(out, res); perr != nil {
				return perr
			}
			return err
		}),
	}
	evict.Flags().IntVar(&keep, "keep", 5, "number of newest sessions to keep")

	root.AddCommand(session, ingest, ask, analyze, compare, evict)
	return root
}

func readFile(path string) (models.UploadedFile, error) {
	name := filepath.Base(path)
	typ := models.DetectType(name)
	if typ == "" {
		return models.UploadedFile{}, fmt.Errorf("unsupported file type: %s", name)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return models.UploadedFile{}, err
	}
	return models.UploadedFile{Name: name, Content: content, Type: typ}, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
