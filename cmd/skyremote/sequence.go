package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/observatory-remote/internal/sequence"
)

var statusOrder = []sequence.Status{
	sequence.StatusRunning,
	sequence.StatusFinished,
	sequence.StatusCreated,
	sequence.StatusSkipped,
	sequence.StatusFailed,
}

func newSequenceCmd(a *app) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "sequence <file|->",
		Short: "Summarize a sequence tree exported from the imaging server",
		Long: `Summarize a sequence tree: the running step, its description,
the containers above it and per-status counts.

The input is the JSON the server returns for its sequence state, either
bare or wrapped in the response envelope. Use "-" to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			forest, err := sequence.Parse(data)
			if err != nil {
				return err
			}

			engine := sequence.NewEngine(a.cfg.Observer)
			printSummary(cmd.OutOrStdout(), engine.Summarize(forest))
			if tree {
				printTree(cmd.OutOrStdout(), engine, forest)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "also print every displayable node")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence: %w", err)
	}
	return data, nil
}

func printSummary(out io.Writer, s sequence.Summary) {
	if s.Step == nil {
		fmt.Fprintln(out, "Sequence idle")
	} else {
		fmt.Fprintf(out, "Running:  %s [%s]\n", s.Step.Name, s.Category)
		if len(s.Breadcrumb) > 0 {
			fmt.Fprintf(out, "Path:     %s\n", strings.Join(s.Breadcrumb, " > "))
		}
		if s.Description != "" {
			fmt.Fprintf(out, "Details:  %s\n", s.Description)
		}
	}

	counts := make([]string, 0, len(statusOrder))
	for _, st := range statusOrder {
		if n := s.Counts[st]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	fmt.Fprintf(out, "Nodes:    %d (%s)\n", s.Total, strings.Join(counts, " "))
}

// printTree lists nodes by depth. Children of nodes displayed as a single
// step are folded away.
func printTree(out io.Writer, engine *sequence.Engine, forest []*sequence.Node) {
	folded := -1
	sequence.Walk(forest, func(n *sequence.Node, depth int) {
		if folded >= 0 && depth > folded {
			return
		}
		folded = -1
		c := sequence.Classify(n)
		if c.LeafDisplay && c.HasChildren {
			folded = depth
		}

		line := fmt.Sprintf("%s%-9s %s", strings.Repeat("  ", depth), n.Status, n.Name)
		if c.LeafDisplay {
			if desc := engine.Describe(n); desc != "" {
				line += ": " + desc
			}
		}
		fmt.Fprintln(out, line)
	})
}
