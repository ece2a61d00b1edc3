package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/config"
	dserrors "github.com/systmms/dsload/internal/errors"
)

func NewBlocksCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Inspect registered blocks",
	}
	cmd.AddCommand(newBlocksListCommand(cfg))
	return cmd
}

func newBlocksListCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [KIND]",
		Short: "List registered blocks",
		Long: `List registered block names, optionally for one kind:
credentials, warehouse, storage or config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := blocks.Kinds
			if len(args) == 1 {
				kind, err := parseKind(args[0])
				if err != nil {
					return err
				}
				kinds = []blocks.Kind{kind}
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KIND\tNAME")
			for _, kind := range kinds {
				names, err := a.blocks.List(kind)
				if err != nil {
					return err
				}
				for _, name := range names {
					_, _ = fmt.Fprintf(w, "%s\t%s\n", kind, name)
				}
			}
			return w.Flush()
		},
	}
	return cmd
}

func parseKind(s string) (blocks.Kind, error) {
	names := make([]string, len(blocks.Kinds))
	for i, k := range blocks.Kinds {
		if string(k) == s {
			return k, nil
		}
		names[i] = string(k)
	}
	return "", dserrors.UserError{
		Message:    fmt.Sprintf("Unknown block kind '%s'", s),
		Suggestion: fmt.Sprintf("Use one of: %s", strings.Join(names, ", ")),
	}
}
