package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/bridgezip/pkg/llm"
	"github.com/ravi-parthasarathy/bridgezip/pkg/patch"
	"github.com/ravi-parthasarathy/bridgezip/pkg/planner"
)

// emitEnvelope prints env as JSON, or applies it to doc when apply is set.
func emitEnvelope(cmd *cobra.Command, out, doc string, env *patch.Envelope, apply bool) error {
	if apply {
		result, err := env.Apply(doc)
		if err != nil {
			return err
		}
		return writeOutput(cmd, out, result)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return writeOutput(cmd, out, string(data))
}

func briefCmd(a *app) *cobra.Command {
	var (
		out     string
		file    string
		doApply bool
	)
	cmd := &cobra.Command{
		Use:   "brief <doc.bz|-> <brief.json>",
		Short: "Compile a semantic edit brief into a task envelope",
		Long: `brief validates a JSON brief (nodes_to_add, nodes_to_update, delete_node_ids,
groups_to_add) against the node catalog and compiles it into placeholder node
and link lines for the given document. With --apply the envelope is applied
and the patched document printed instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := singleStdin(args...); err != nil {
				return err
			}
			doc, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			defs, err := a.fetchDefs(ctx, file)
			if err != nil {
				return err
			}

			brief, err := planner.ParseBrief(raw, defs)
			if err != nil {
				return fmt.Errorf("invalid brief: %w", err)
			}
			env, err := brief.Compile(defs, string(doc))
			if err != nil {
				return err
			}
			return emitEnvelope(cmd, out, string(doc), env, doApply)
		},
	}
	cmd.Flags().StringVar(&file, "catalog-file", "", "read the node catalog from a saved object_info JSON file")
	cmd.Flags().BoolVar(&doApply, "apply", false, "apply the compiled envelope and print the patched document")
	addOutputFlag(cmd, &out)
	return cmd
}

func planCmd(a *app) *cobra.Command {
	var (
		out       string
		file      string
		model     string
		maxTokens int
		noCatalog bool
		doApply   bool
	)
	cmd := &cobra.Command{
		Use:   "plan <doc.bz|-> <request>",
		Short: "Ask a language model to plan an edit and print the task envelope",
		Long: `plan sends the compressed document and a natural-language request to a
model and parses the reply as a task envelope or a semantic brief. Briefs are
compiled with the node catalog. The model is "provider:model-id"; registered
providers are anthropic, openai and gemini.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if model == "" {
				model = a.cfg.Planner.Model
			}
			if maxTokens == 0 {
				maxTokens = a.cfg.Planner.MaxTokens
			}

			client, err := llm.NewClient(model)
			if err != nil {
				return err
			}
			opts := []planner.Option{planner.WithMaxTokens(maxTokens)}
			if !noCatalog {
				src, closer, err := a.catalogSource(file)
				if err != nil {
					return err
				}
				defer closer()
				opts = append(opts, planner.WithCatalog(src))
			}
			p := planner.NewLLMPlanner(client, opts...)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			slog.Info("planning", "model", model, "max_tokens", maxTokens)
			env, err := p.Plan(ctx, string(doc), args[1])
			if err != nil {
				return err
			}
			slog.Info("plan ready", "summary", env.PlanSummary, "deletes", len(env.DeleteIDs), "groups", len(env.AddGroups))
			return emitEnvelope(cmd, out, string(doc), env, doApply)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "provider:model-id (default from config)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "reply token limit (default from config)")
	cmd.Flags().StringVar(&file, "catalog-file", "", "read the node catalog from a saved object_info JSON file")
	cmd.Flags().BoolVar(&noCatalog, "no-catalog", false, "plan without the node catalog (brief replies are rejected)")
	cmd.Flags().BoolVar(&doApply, "apply", false, "apply the envelope and print the patched document")
	addOutputFlag(cmd, &out)
	return cmd
}
