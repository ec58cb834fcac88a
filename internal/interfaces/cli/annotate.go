package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/pkg/client"
	"github.com/spanmark/spanmark/pkg/errors"
)

// Flags for the annotation commands.
var (
	annotatePreview bool

	entityAddType  string
	entityAddStart int
	entityAddEnd   int

	entitySetType  string
	entitySetStart int
	entitySetEnd   int

	relationAddType string
	relationAddHead string
	relationAddTail string
)

// NewAnnotateCmd creates the annotate command. It runs the gazetteer pipeline
// over a document on the server and merges the candidates into the stored
// annotation set.
func NewAnnotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate <document-id>",
		Short: "Auto-annotate a document with the gazetteer pipeline",
		Long:  "Annotate matches the loaded lexicon and pattern rules against a document\nand merges the candidate entities into its annotation set. Manual\nannotations always win conflicts. With --preview the merge is computed\nbut not persisted.",
		Example: `  spanmark annotate 6a9c1f...
  spanmark annotate 6a9c1f... --preview`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&annotatePreview, "preview", false, "compute the merge without persisting it")

	return cmd
}

func runAnnotate(cmd *cobra.Command, documentID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	outcome, err := api.Annotations().AutoAnnotate(cmd.Context(), documentID, annotatePreview)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, outcome)
	}

	formatMergeOutcome(cmd, outcome)
	return nil
}

// formatMergeOutcome renders an auto-annotation result for humans.
func formatMergeOutcome(cmd *cobra.Command, outcome *client.MergeOutcome) {
	out := cmd.OutOrStdout()

	mode := "merged"
	if outcome.Preview {
		mode = "preview"
	}
	fmt.Fprintf(out, "Auto-annotation %s for document %s\n", mode, outcome.DocumentID)
	fmt.Fprintf(out, "  Entities:  %d total, %d accepted in this run\n",
		outcome.Entities, outcome.Report.AcceptedEntities)
	fmt.Fprintf(out, "  Relations: %d total\n", outcome.Relations)

	if len(outcome.Report.DroppedEntities) == 0 && len(outcome.Report.DroppedRelations) == 0 {
		fmt.Fprintln(out, color.GreenString("  No conflicts."))
		return
	}

	fmt.Fprintln(out, color.YellowString("  Conflicts:"))
	if len(outcome.Report.DroppedEntities) > 0 {
		rows := make([][]string, 0, len(outcome.Report.DroppedEntities))
		for _, d := range outcome.Report.DroppedEntities {
			conflict := ""
			if d.ConflictWith != nil {
				conflict = fmt.Sprintf("%s [%d,%d)", d.ConflictWith.Type, d.ConflictWith.Start, d.ConflictWith.End)
			}
			rows = append(rows, []string{
				d.Entity.Type,
				fmt.Sprintf("[%d,%d)", d.Entity.Start, d.Entity.End),
				truncateString(d.Entity.Surface, 40),
				string(d.Reason),
				conflict,
			})
		}
		fmt.Fprint(out, FormatTable([]string{"TYPE", "SPAN", "SURFACE", "REASON", "CONFLICT WITH"}, rows))
	}
	for _, d := range outcome.Report.DroppedRelations {
		fmt.Fprintf(out, "  relation %s dropped: %s\n", d.Relation.Type, d.Reason)
	}
}

// NewEntityCmd creates the entity command group for manual span curation.
func NewEntityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage entity annotations on a document",
	}

	addCmd := &cobra.Command{
		Use:   "add <document-id>",
		Short: "Add a manual entity annotation",
		Long:  "Add records a manual entity over the token span [start, end). Manual\nentities take precedence over gazetteer candidates in later merges.",
		Example: `  spanmark entity add 6a9c1f... --type character --start 4 --end 6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityAdd(cmd, args[0])
		},
	}
	addCmd.Flags().StringVar(&entityAddType, "type", "", "entity type name (required)")
	addCmd.Flags().IntVar(&entityAddStart, "start", 0, "first token index of the span")
	addCmd.Flags().IntVar(&entityAddEnd, "end", 0, "token index one past the span")
	_ = addCmd.MarkFlagRequired("type")
	_ = addCmd.MarkFlagRequired("start")
	_ = addCmd.MarkFlagRequired("end")

	setCmd := &cobra.Command{
		Use:   "set <document-id> <entity-id>",
		Short: "Rewrite an entity's type and span",
		Example: `  spanmark entity set 6a9c1f... f2d807... --type location --start 4 --end 7`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntitySet(cmd, args[0], args[1])
		},
	}
	setCmd.Flags().StringVar(&entitySetType, "type", "", "entity type name (required)")
	setCmd.Flags().IntVar(&entitySetStart, "start", 0, "first token index of the span")
	setCmd.Flags().IntVar(&entitySetEnd, "end", 0, "token index one past the span")
	_ = setCmd.MarkFlagRequired("type")
	_ = setCmd.MarkFlagRequired("start")
	_ = setCmd.MarkFlagRequired("end")

	rmCmd := &cobra.Command{
		Use:   "rm <document-id> <entity-id>",
		Short: "Delete an entity and its relations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityRemove(cmd, args[0], args[1])
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls <document-id>",
		Short: "List a document's entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityList(cmd, args[0])
		},
	}

	cmd.AddCommand(addCmd, setCmd, rmCmd, lsCmd)
	return cmd
}

func runEntityAdd(cmd *cobra.Command, documentID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}
	if entityAddEnd <= entityAddStart {
		return errors.Newf(errors.ErrCodeBadRequest,
			"span end %d must be greater than start %d", entityAddEnd, entityAddStart)
	}

	entity, err := api.Annotations().AddEntity(cmd.Context(), documentID, &client.AddEntityRequest{
		Type:  entityAddType,
		Start: entityAddStart,
		End:   entityAddEnd,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, entity)
	}

	PrintSuccess(cmd, fmt.Sprintf("added %s %q [%d,%d) as %s",
		entity.Type, entity.Surface, entity.Start, entity.End, entity.ID))
	return nil
}

func runEntitySet(cmd *cobra.Command, documentID, entityID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}
	if entitySetEnd <= entitySetStart {
		return errors.Newf(errors.ErrCodeBadRequest,
			"span end %d must be greater than start %d", entitySetEnd, entitySetStart)
	}

	entity, err := api.Annotations().UpdateEntity(cmd.Context(), documentID, entityID, &client.UpdateEntityRequest{
		Type:  entitySetType,
		Start: entitySetStart,
		End:   entitySetEnd,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, entity)
	}

	PrintSuccess(cmd, fmt.Sprintf("entity %s is now %s %q [%d,%d)",
		entity.ID, entity.Type, entity.Surface, entity.Start, entity.End))
	return nil
}

func runEntityRemove(cmd *cobra.Command, documentID, entityID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	removal, err := api.Annotations().DeleteEntity(cmd.Context(), documentID, entityID)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, removal)
	}

	msg := fmt.Sprintf("removed entity %s", removal.EntityID)
	if removal.RemovedRelations > 0 {
		msg += fmt.Sprintf(" and %d attached relation(s)", removal.RemovedRelations)
	}
	PrintSuccess(cmd, msg)
	return nil
}

func runEntityList(cmd *cobra.Command, documentID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	detail, err := api.Documents().Get(cmd.Context(), documentID)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, detail.Entities)
	}

	if len(detail.Entities) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Document %q has no entities.\n", detail.Name)
		return nil
	}

	rows := make([][]string, 0, len(detail.Entities))
	for _, e := range detail.Entities {
		rows = append(rows, []string{
			truncateString(e.ID, 12),
			e.Type,
			fmt.Sprintf("[%d,%d)", e.Start, e.End),
			truncateString(e.Surface, 44),
			colorizeProvenance(e.Provenance),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Entities of %q (%d):\n", detail.Name, len(detail.Entities))
	fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"ID", "TYPE", "SPAN", "SURFACE", "PROV"}, rows))
	return nil
}

// NewRelationCmd creates the relation command group.
func NewRelationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relation",
		Short: "Manage relation annotations on a document",
	}

	addCmd := &cobra.Command{
		Use:   "add <document-id>",
		Short: "Add a relation between two entities",
		Example: `  spanmark relation add 6a9c1f... --type lives-in --head f2d807... --tail 91bc44...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelationAdd(cmd, args[0])
		},
	}
	addCmd.Flags().StringVar(&relationAddType, "type", "", "relation type name (required)")
	addCmd.Flags().StringVar(&relationAddHead, "head", "", "head entity ID (required)")
	addCmd.Flags().StringVar(&relationAddTail, "tail", "", "tail entity ID (required)")
	_ = addCmd.MarkFlagRequired("type")
	_ = addCmd.MarkFlagRequired("head")
	_ = addCmd.MarkFlagRequired("tail")

	rmCmd := &cobra.Command{
		Use:   "rm <document-id> <relation-id>",
		Short: "Delete a relation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelationRemove(cmd, args[0], args[1])
		},
	}

	cmd.AddCommand(addCmd, rmCmd)
	return cmd
}

func runRelationAdd(cmd *cobra.Command, documentID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	rel, err := api.Annotations().AddRelation(cmd.Context(), documentID, &client.AddRelationRequest{
		Type:   relationAddType,
		HeadID: relationAddHead,
		TailID: relationAddTail,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, rel)
	}

	PrintSuccess(cmd, fmt.Sprintf("added %s(%q -> %q) as %s",
		rel.Type, rel.HeadSurface, rel.TailSurface, rel.ID))
	return nil
}

func runRelationRemove(cmd *cobra.Command, documentID, relationID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	if err := api.Annotations().DeleteRelation(cmd.Context(), documentID, relationID); err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, map[string]string{"relation_id": relationID})
	}

	PrintSuccess(cmd, fmt.Sprintf("removed relation %s", relationID))
	return nil
}

// colorizeProvenance colors the annotation origin for terminal output.
func colorizeProvenance(provenance string) string {
	switch provenance {
	case "manual":
		return color.GreenString(provenance)
	case "gazetteer", "model-prediction":
		return color.YellowString(provenance)
	default:
		return provenance
	}
}
