package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
	"github.com/ravi-parthasarathy/bridgezip/pkg/patch"
)

func compressCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compress <workflow.json|->",
		Short: "Convert workflow JSON to the compressed form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			text, err := bridgezip.CompressJSON(data)
			if err != nil {
				return fmt.Errorf("compress: %w", err)
			}
			slog.Debug("compressed", "in_bytes", len(data), "out_bytes", len(text))
			return writeOutput(cmd, out, text)
		},
	}
	addOutputFlag(cmd, &out)
	return cmd
}

func decompressCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "decompress <doc.bz|->",
		Short: "Convert a compressed document back to workflow JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			js, err := bridgezip.DecompressJSON(string(data))
			if err != nil {
				return fmt.Errorf("decompress: %w", err)
			}
			return writeOutput(cmd, out, js)
		},
	}
	addOutputFlag(cmd, &out)
	return cmd
}

func patchCmd() *cobra.Command {
	var (
		out          string
		fragmentPath string
		envelopePath string
		deleteIDs    []int
	)
	cmd := &cobra.Command{
		Use:   "patch <doc.bz|->",
		Short: "Delete nodes and merge a fragment or envelope into a compressed document",
		Long: `patch runs decompress, delete, resolve placeholders, merge, repair and
recompress. New nodes and links may use NODE_<n> and LINK_<n> placeholders.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if envelopePath != "" && (fragmentPath != "" || len(deleteIDs) > 0) {
				return fmt.Errorf("--envelope cannot be combined with --fragment or --delete")
			}
			if err := singleStdin(args[0], fragmentPath, envelopePath); err != nil {
				return err
			}
			doc, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			if envelopePath != "" {
				raw, err := readInput(cmd, envelopePath)
				if err != nil {
					return err
				}
				env, err := patch.ParseEnvelope(raw)
				if err != nil {
					return err
				}
				result, err := env.Apply(string(doc))
				if err != nil {
					return err
				}
				return writeOutput(cmd, out, result)
			}

			var fragment string
			if fragmentPath != "" {
				raw, err := readInput(cmd, fragmentPath)
				if err != nil {
					return err
				}
				fragment = string(raw)
			}
			res, err := patch.Run(string(doc), patch.Request{Fragment: fragment, DeleteIDs: deleteIDs})
			if err != nil {
				return err
			}
			if len(res.Placeholders) > 0 {
				slog.Info("placeholders resolved", "ids", formatPlaceholders(res.Placeholders, res.Order))
			}
			return writeOutput(cmd, out, res.Document)
		},
	}
	cmd.Flags().StringVar(&fragmentPath, "fragment", "", "fragment of node/link lines to merge (path or -)")
	cmd.Flags().StringVar(&envelopePath, "envelope", "", "JSON task envelope to apply (path or -)")
	cmd.Flags().IntSliceVar(&deleteIDs, "delete", nil, "node ids to delete")
	addOutputFlag(cmd, &out)
	return cmd
}

// formatPlaceholders renders token=id pairs in first-seen order.
func formatPlaceholders(ids map[string]int, order []string) string {
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", k, ids[k]))
	}
	return strings.Join(parts, " ")
}
