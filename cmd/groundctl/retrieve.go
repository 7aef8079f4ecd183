package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	grounding "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/orchestrator"
)

type batchOutput struct {
	ClauseID string `json:"clause_id"`
	Pack     any    `json:"pack,omitempty"`
	Error    string `json:"error,omitempty"`
}

// newRetrieveCommand runs the pipeline once and prints the evidence pack
func newRetrieveCommand(cli *CLI) *cobra.Command {
	var (
		req        grounding.RetrieveRequest
		textFile   string
		batchFile  string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve the evidence pack of a clause",
		Example: `  groundctl retrieve --clause-id 4.2 --jurisdiction maharashtra --intent possession_delay \
      --section "Section 18(1)" --rule "Rule 18" --text "The promoter shall pay compensation..."
  groundctl retrieve --batch clauses.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cli.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			if batchFile != "" {
				return runBatch(cmd, client, batchFile)
			}

			if textFile != "" {
				raw, err := os.ReadFile(textFile)
				if err != nil {
					return err
				}
				req.Text = string(raw)
			}
			if cmd.Flags().Changed("confidence") {
				req.ChunkConfidence = &confidence
			}
			pack, err := client.Retrieve(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pack)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.ClauseID, "clause-id", "", "clause identifier")
	f.StringVarP(&req.Jurisdiction, "jurisdiction", "j", "", "jurisdiction whose indexes are searched")
	f.StringVar(&req.Intent, "intent", "", "clause intent label")
	f.StringVar(&req.Act, "act", "", "act the clause relies on")
	f.StringSliceVar(&req.Sections, "section", nil, "expected section citation (repeatable)")
	f.StringSliceVar(&req.Rules, "rule", nil, "expected state rule citation (repeatable)")
	f.StringVar(&req.Text, "text", "", "clause text")
	f.StringVar(&textFile, "text-file", "", "read the clause text from a file")
	f.StringVar(&req.IndexHint, "index-hint", "", "restrict similarity search to one index")
	f.Float64Var(&confidence, "confidence", 0, "upstream chunk confidence in [0, 1]")
	f.StringVar(&batchFile, "batch", "", "JSON file holding an array of clauses")
	return cmd
}

func runBatch(cmd *cobra.Command, client *grounding.Client, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var reqs []grounding.RetrieveRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	results, batchErr := client.RetrieveBatch(cmd.Context(), reqs)
	out := make([]batchOutput, len(results))
	for i, r := range results {
		out[i] = toBatchOutput(r)
	}
	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	return batchErr
}

func toBatchOutput(r orchestrator.BatchResult) batchOutput {
	o := batchOutput{ClauseID: r.ClauseID}
	if r.Err != nil {
		o.Error = r.Err.Error()
	} else {
		o.Pack = r.Pack
	}
	return o
}

// newNormalizeCommand canonicalizes citations
func newNormalizeCommand(cli *CLI) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "normalize REFERENCE...",
		Short: "Canonicalize statutory citations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]grounding.Reference, 0, len(args))
			for _, a := range args {
				ref, err := grounding.Normalize(kind, a)
				if err != nil {
					return err
				}
				refs = append(refs, ref)
			}
			return writeJSON(cmd.OutOrStdout(), refs)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "section, rule or act; detected when empty")
	return cmd
}
