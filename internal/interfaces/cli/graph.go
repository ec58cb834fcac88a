package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/internal/infrastructure/database/neo4j"
	"github.com/spanmark/spanmark/internal/infrastructure/database/postgres"
	pgrepo "github.com/spanmark/spanmark/internal/infrastructure/database/postgres/repositories"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// graphExportPageSize bounds how many root documents each postgres page
// fetches during a full export.
const graphExportPageSize = 100

// NewGraphCmd creates the graph command group. Like the gazetteer commands
// these bypass the API server and connect to postgres and neo4j directly.
func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Project annotations into the knowledge graph",
	}

	exportCmd := &cobra.Command{
		Use:   "export [document-id...]",
		Short: "Export annotated documents to neo4j",
		Long:  "Export projects documents and their annotation sets into the neo4j\ngraph. Without arguments every root document is exported; with\narguments only the named documents are. Exports are idempotent, so\nre-running refreshes the graph in place.",
		Example: `  spanmark graph export
  spanmark graph export 01J5ZX7Q8R9S 01J5ZX7QWXYZ`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphExport(cmd, args)
		},
	}

	cmd.AddCommand(exportCmd)
	return cmd
}

// graphExportDoc is one exported document in the result payload.
type graphExportDoc struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Mentions  int    `json:"mentions"`
	Relations int    `json:"relations"`
}

// graphExportResult is the export subcommand's output payload.
type graphExportResult struct {
	Documents []graphExportDoc  `json:"documents"`
	Mentions  int               `json:"mentions"`
	Relations int               `json:"relations"`
	Stats     *neo4j.GraphStats `json:"stats,omitempty"`
}

func runGraphExport(cmd *cobra.Command, ids []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	conn, err := postgres.NewConnection(ctx, cliCtx.Config.Database, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	driver, err := neo4j.NewDriver(cliCtx.Config.Neo4j, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	docs := pgrepo.NewDocumentRepository(conn.Pool(), cliCtx.Logger)
	anns := pgrepo.NewAnnotationRepository(conn.Pool(), cliCtx.Logger)
	exporter := neo4j.NewGraphExporter(driver, cliCtx.Logger)

	if err := exporter.EnsureSchema(ctx); err != nil {
		return err
	}

	result := &graphExportResult{}
	exportOne := func(id common.ID) error {
		doc, err := docs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		set, err := anns.LoadSet(ctx, doc.ID)
		if err != nil {
			return err
		}
		summary, err := exporter.ExportDocument(ctx, doc, set)
		if err != nil {
			return err
		}
		result.Documents = append(result.Documents, graphExportDoc{
			ID:        string(doc.ID),
			Name:      doc.Name,
			Mentions:  summary.Mentions,
			Relations: summary.Relations,
		})
		result.Mentions += summary.Mentions
		result.Relations += summary.Relations
		return nil
	}

	if len(ids) > 0 {
		for _, id := range ids {
			if err := exportOne(common.ID(id)); err != nil {
				return err
			}
		}
	} else {
		for page := 1; ; page++ {
			batch, total, err := docs.List(ctx, common.Pagination{Page: page, PageSize: graphExportPageSize})
			if err != nil {
				return err
			}
			for _, doc := range batch {
				if err := exportOne(doc.ID); err != nil {
					return err
				}
			}
			if len(batch) == 0 || int64(len(result.Documents)) >= total {
				break
			}
		}
	}

	stats, err := exporter.Stats(ctx)
	if err != nil {
		cliCtx.Logger.Warn("graph stats unavailable after export", logging.Err(err))
	} else {
		result.Stats = stats
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	if len(result.Documents) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents to export.")
		return nil
	}

	rows := make([][]string, 0, len(result.Documents))
	for _, d := range result.Documents {
		rows = append(rows, []string{
			truncateString(d.Name, 40),
			truncateString(d.ID, 12),
			fmt.Sprintf("%d", d.Mentions),
			fmt.Sprintf("%d", d.Relations),
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"DOCUMENT", "ID", "MENTIONS", "RELATIONS"}, rows))
	PrintSuccess(cmd, fmt.Sprintf("exported %d document(s): %d mentions, %d relations",
		len(result.Documents), result.Mentions, result.Relations))

	if result.Stats != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Graph now holds %d documents, %d mentions, %d relations.\n",
			result.Stats.Documents, result.Stats.Mentions, result.Stats.Relations)
		if len(result.Stats.MentionTypes) > 0 {
			types := make([]string, 0, len(result.Stats.MentionTypes))
			for name := range result.Stats.MentionTypes {
				types = append(types, name)
			}
			sort.Strings(types)
			typeRows := make([][]string, 0, len(types))
			for _, name := range types {
				typeRows = append(typeRows, []string{name, fmt.Sprintf("%d", result.Stats.MentionTypes[name])})
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"MENTION TYPE", "NODES"}, typeRows))
		}
	}
	return nil
}
