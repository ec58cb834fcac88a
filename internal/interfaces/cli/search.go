package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/pkg/client"
)

// Flags for the search commands.
var (
	searchType     string
	searchDocument string
	searchPage     int
	searchPageSize int

	reindexDocument string
)

// NewSearchCmd creates the search command. It queries the entity mention
// index on the server.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed entity mentions",
		Long:  "Search matches the query against entity surface forms and their\nsurrounding context in the mention index. Filters narrow by entity type\nand document; an empty query lists everything that matches the filters.",
		Example: `  spanmark search alice
  spanmark search "white rabbit" --type character
  spanmark search --type location --doc 6a9c1f...
  spanmark search alice -o json | jq '.mentions[].surface'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runSearch(cmd, query)
		},
	}

	cmd.Flags().StringVar(&searchType, "type", "", "filter by entity type")
	cmd.Flags().StringVar(&searchDocument, "doc", "", "filter by document ID")
	cmd.Flags().IntVar(&searchPage, "page", 1, "page number")
	cmd.Flags().IntVar(&searchPageSize, "page-size", 20, "page size")

	return cmd
}

func runSearch(cmd *cobra.Command, query string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	result, err := api.Search().Entities(cmd.Context(), &client.SearchRequest{
		Query:      query,
		Type:       searchType,
		DocumentID: searchDocument,
		Page:       searchPage,
		PageSize:   searchPageSize,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	formatSearchResult(cmd, result)
	return nil
}

// formatSearchResult renders a mention page for humans.
func formatSearchResult(cmd *cobra.Command, result *client.SearchResult) {
	out := cmd.OutOrStdout()

	if len(result.Mentions) == 0 {
		fmt.Fprintln(out, "No mentions found.")
		return
	}

	rows := make([][]string, 0, len(result.Mentions))
	for _, m := range result.Mentions {
		doc := m.DocumentName
		if doc == "" {
			doc = truncateString(m.DocumentID, 12)
		}
		partners := ""
		if len(m.Partners) > 0 {
			partners = fmt.Sprintf("%s %s", m.Partners[0].Relation, m.Partners[0].Surface)
			if len(m.Partners) > 1 {
				partners += fmt.Sprintf(" (+%d)", len(m.Partners)-1)
			}
		}
		rows = append(rows, []string{
			truncateString(m.Surface, 32),
			m.Type,
			doc,
			fmt.Sprintf("[%d,%d)", m.Start, m.End),
			truncateString(m.Context, 48),
			truncateString(partners, 32),
		})
	}

	fmt.Fprint(out, FormatTable([]string{"SURFACE", "TYPE", "DOCUMENT", "SPAN", "CONTEXT", "RELATIONS"}, rows))
	fmt.Fprintf(out, "Total results: %d (page %d, %dms)\n", result.Total, result.Page, result.TookMs)
}

// NewReindexCmd creates the reindex command. It rebuilds the mention index
// on the server.
func NewReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the entity mention index",
		Long:  "Reindex re-derives the mention index from the stored documents and\nannotation sets, for one document with --doc or for the whole corpus\nwithout it.",
		Example: `  spanmark reindex
  spanmark reindex --doc 6a9c1f...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd)
		},
	}

	cmd.Flags().StringVar(&reindexDocument, "doc", "", "reindex only this document")

	return cmd
}

func runReindex(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	result, err := api.Search().Reindex(cmd.Context(), reindexDocument)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("reindexed %d document(s), %d mention(s)", result.Documents, result.Mentions))
	return nil
}
