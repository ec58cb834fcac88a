package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/spert"
	"github.com/spanmark/spanmark/pkg/errors"
)

// Flags for the merge command.
var (
	mergeGoldPath       string
	mergeCandidatesPath string
	mergeOutPath        string
	mergeAllowOverlaps  bool
)

// NewMergeCmd creates the merge command. It merges a candidates dataset file
// into a gold dataset file record by record, locally.
func NewMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge predicted entities into a gold dataset file",
		Long:  "Merge runs the annotation merge engine over two aligned dataset files:\nfor each record, predicted entities from the candidates file are merged\ninto the gold record under gold-wins precedence, and the result is written\nas a new dataset file. Records are aligned by position and must carry\nidentical token sequences. Candidate relations are not merged; gold\nrelations survive when both endpoints do.",
		Example: `  spanmark merge --gold train.json --candidates predictions.json --out merged.json
  spanmark merge --gold train.json --candidates predictions.json --out merged.json --allow-overlaps`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd)
		},
	}

	cmd.Flags().StringVar(&mergeGoldPath, "gold", "", "gold dataset file (required)")
	cmd.Flags().StringVar(&mergeCandidatesPath, "candidates", "", "candidates dataset file (required)")
	cmd.Flags().StringVar(&mergeOutPath, "out", "", "merged dataset output file (required)")
	cmd.Flags().BoolVar(&mergeAllowOverlaps, "allow-overlaps", false, "accept overlapping spans instead of dropping them")
	_ = cmd.MarkFlagRequired("gold")
	_ = cmd.MarkFlagRequired("candidates")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

// mergeResult is the merge command's output payload.
type mergeResult struct {
	Out               string `json:"out"`
	Records           int    `json:"records"`
	Strict            bool   `json:"strict"`
	AcceptedEntities  int    `json:"accepted_entities"`
	AcceptedRelations int    `json:"accepted_relations"`
	DroppedEntities   int    `json:"dropped_entities"`
	DroppedRelations  int    `json:"dropped_relations"`
	// ConflictRecords lists the indices of records whose merge dropped
	// something.
	ConflictRecords []int `json:"conflict_records,omitempty"`
}

func runMerge(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	gold, err := spert.ReadDatasetFile(mergeGoldPath)
	if err != nil {
		return err
	}
	candidates, err := spert.ReadDatasetFile(mergeCandidatesPath)
	if err != nil {
		return err
	}
	if len(gold) != len(candidates) {
		return errors.Newf(errors.ErrCodeBadRequest,
			"record count mismatch: gold has %d records, candidates has %d", len(gold), len(candidates))
	}

	policy := annotation.MergePolicy{Strict: !mergeAllowOverlaps}
	result := &mergeResult{Out: mergeOutPath, Records: len(gold), Strict: policy.Strict}

	merged := make([]spert.Record, 0, len(gold))
	for i := range gold {
		if err := sameTokens(gold[i], candidates[i], i); err != nil {
			return err
		}

		name := fmt.Sprintf("record-%d", i)
		doc, goldSet, err := spert.Decode(name, gold[i], spert.ClassGold)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeBadRequest, "gold record %d", i)
		}
		_, candSet, err := spert.Decode(name, candidates[i], spert.ClassPrediction)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeBadRequest, "candidate record %d", i)
		}

		mergedSet, report := annotation.Merge(goldSet, candSet.Entities, policy)

		rec, err := spert.Encode(doc, mergedSet)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeInternal, "encode record %d", i)
		}
		merged = append(merged, rec)

		result.AcceptedEntities += report.AcceptedEntities
		result.AcceptedRelations += report.AcceptedRelations
		result.DroppedEntities += len(report.DroppedEntities)
		result.DroppedRelations += len(report.DroppedRelations)
		if report.HasConflicts() {
			result.ConflictRecords = append(result.ConflictRecords, i)
		}
	}

	if err := spert.WriteDatasetFile(mergeOutPath, merged); err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("merged %d records into %s", result.Records, result.Out))
	fmt.Fprintf(cmd.OutOrStdout(), "  Entities:  %d accepted, %d dropped\n",
		result.AcceptedEntities, result.DroppedEntities)
	fmt.Fprintf(cmd.OutOrStdout(), "  Relations: %d accepted, %d dropped\n",
		result.AcceptedRelations, result.DroppedRelations)
	if len(result.ConflictRecords) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d record(s) had conflicts: %v\n",
			color.YellowString("Note:"), len(result.ConflictRecords), result.ConflictRecords)
	}
	return nil
}

// sameTokens verifies two aligned records carry the same token sequence.
func sameTokens(a, b spert.Record, index int) error {
	if len(a.Tokens) != len(b.Tokens) {
		return errors.Newf(errors.ErrCodeBadRequest,
			"record %d: token count mismatch (gold %d, candidates %d)", index, len(a.Tokens), len(b.Tokens))
	}
	for j := range a.Tokens {
		if a.Tokens[j] != b.Tokens[j] {
			return errors.Newf(errors.ErrCodeBadRequest,
				"record %d: token %d differs (gold %q, candidates %q)", index, j, a.Tokens[j], b.Tokens[j])
		}
	}
	return nil
}
