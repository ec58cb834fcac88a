package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/pkg/client"
	"github.com/spanmark/spanmark/pkg/errors"
)

// Flags for the document commands.
var (
	importName  string
	importClean bool

	tokenizeName string

	cleanOutPath        string
	cleanKeepGutenberg  bool
	cleanKeepCitations  bool
	cleanKeepBlankLines bool

	docListPage     int
	docListPageSize int
)

// NewImportCmd creates the import command. It reads a text file and imports
// it into the corpus through the API server.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a text file into the corpus",
		Long:  "Import reads a UTF-8 text file, sends it to the API server, and prints\nthe stored document. The server cleans (optional), tokenizes, and chunks\nthe text on ingest.",
		Example: `  spanmark import corpus/alice.txt
  spanmark import corpus/alice.txt --name alice --clean
  spanmark import corpus/alice.txt -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&importName, "name", "", "document name (default: file name without extension)")
	cmd.Flags().BoolVar(&importClean, "clean", false, "run the corpus cleaner before tokenizing")

	return cmd
}

func runImport(cmd *cobra.Command, path string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, fmt.Sprintf("read %s", path))
	}

	name := importName
	if name == "" {
		name = docNameFromPath(path)
	}

	doc, err := api.Documents().Import(cmd.Context(), &client.ImportDocumentRequest{
		Name:  name,
		Text:  string(data),
		Clean: importClean,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, doc)
	}

	PrintSuccess(cmd, fmt.Sprintf("imported %q (%d tokens, %d sentences, %d chunks)",
		doc.Name, doc.TokenCount, doc.SentenceCount, doc.Chunks))
	fmt.Fprintf(cmd.OutOrStdout(), "Document ID: %s\n", doc.ID)
	return nil
}

// NewTokenizeCmd creates the tokenize command. It runs the tokenizer locally
// without contacting a server.
func NewTokenizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokenize <file>",
		Short: "Tokenize a text file locally",
		Long:  "Tokenize splits a text file into tokens with rune offsets using the same\ntokenizer as the server-side ingest pipeline, and reports token and\nsentence counts. No server is required.",
		Example: `  spanmark tokenize corpus/alice.txt
  spanmark tokenize corpus/alice.txt -o json | jq '.tokens[:5]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenize(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&tokenizeName, "name", "", "document name (default: file name without extension)")

	return cmd
}

// tokenizeResult is the tokenize command's output payload.
type tokenizeResult struct {
	Name      string   `json:"name"`
	Tokens    int      `json:"token_count"`
	Sentences int      `json:"sentence_count"`
	Texts     []string `json:"tokens"`
}

func runTokenize(cmd *cobra.Command, path string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, fmt.Sprintf("read %s", path))
	}

	name := tokenizeName
	if name == "" {
		name = docNameFromPath(path)
	}

	tok := newTokenizer(cliCtx)
	doc, err := tok.Tokenize(name, string(data))
	if err != nil {
		return err
	}

	result := &tokenizeResult{
		Name:      doc.Name,
		Tokens:    doc.TokenCount(),
		Sentences: tokenize.SentenceCount(doc.Tokens),
		Texts:     doc.TokenTexts(),
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens, %d sentences\n", result.Name, result.Tokens, result.Sentences)
	if len(result.Texts) > 0 {
		preview := result.Texts
		if len(preview) > 12 {
			preview = preview[:12]
		}
		fmt.Fprintf(cmd.OutOrStdout(), "First tokens: %s\n", truncateString(strings.Join(preview, " "), 96))
	}
	return nil
}

// NewCleanCmd creates the clean command. It runs the corpus cleaner locally.
func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean <file>",
		Short: "Clean a text file locally",
		Long:  "Clean strips Project Gutenberg boilerplate, bracketed citation markers,\nand runs of blank lines from a text file. The cleaned text goes to stdout\nunless --out is given. No server is required.",
		Example: `  spanmark clean corpus/alice.txt > alice-clean.txt
  spanmark clean corpus/alice.txt --out alice-clean.txt
  spanmark clean corpus/paper.txt --keep-gutenberg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&cleanOutPath, "out", "", "write cleaned text to this file instead of stdout")
	cmd.Flags().BoolVar(&cleanKeepGutenberg, "keep-gutenberg", false, "keep Project Gutenberg front and back matter")
	cmd.Flags().BoolVar(&cleanKeepCitations, "keep-citations", false, "keep bracketed citation markers")
	cmd.Flags().BoolVar(&cleanKeepBlankLines, "keep-blank-lines", false, "keep runs of blank lines")

	return cmd
}

// cleanResult is the clean command's output payload when writing to a file.
type cleanResult struct {
	Out              string `json:"out"`
	GutenbergTrimmed bool   `json:"gutenberg_trimmed"`
	CitationsRemoved int    `json:"citations_removed"`
	RunesIn          int    `json:"runes_in"`
	RunesOut         int    `json:"runes_out"`
}

func runClean(cmd *cobra.Command, path string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, fmt.Sprintf("read %s", path))
	}

	cleaner := tokenize.NewCleaner(
		tokenize.WithStripGutenberg(!cleanKeepGutenberg),
		tokenize.WithStripCitations(!cleanKeepCitations),
		tokenize.WithCollapseBlankLines(!cleanKeepBlankLines),
	)
	cleaned, stats := cleaner.Clean(string(data))

	if cleanOutPath == "" {
		fmt.Fprintln(cmd.OutOrStdout(), cleaned)
		return nil
	}

	if err := os.WriteFile(cleanOutPath, []byte(cleaned+"\n"), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, fmt.Sprintf("write %s", cleanOutPath))
	}

	result := &cleanResult{
		Out:              cleanOutPath,
		GutenbergTrimmed: stats.GutenbergTrimmed,
		CitationsRemoved: stats.CitationsRemoved,
		RunesIn:          stats.RunesIn,
		RunesOut:         stats.RunesOut,
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("cleaned %s (%d -> %d runes, %d citations removed)",
		path, result.RunesIn, result.RunesOut, result.CitationsRemoved))
	return nil
}

// NewDocumentCmd creates the document command group for browsing and
// removing stored documents.
func NewDocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Browse and remove stored documents",
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List documents, newest first",
		Example: `  spanmark document ls
  spanmark document ls --page 2 --page-size 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentList(cmd)
		},
	}
	lsCmd.Flags().IntVar(&docListPage, "page", 1, "page number")
	lsCmd.Flags().IntVar(&docListPageSize, "page-size", 20, "page size")

	showCmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show one document with its annotation counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentShow(cmd, args[0])
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <document-id>",
		Short: "Delete a document and its annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentRemove(cmd, args[0])
		},
	}

	cmd.AddCommand(lsCmd, showCmd, rmCmd)
	return cmd
}

func runDocumentList(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	docs, page, err := api.Documents().List(cmd.Context(), docListPage, docListPageSize)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, docs)
	}

	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
		return nil
	}

	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []string{
			truncateString(d.ID, 12),
			truncateString(d.Name, 32),
			fmt.Sprintf("%d", d.TokenCount),
			fmt.Sprintf("%d", d.SentenceCount),
			fmt.Sprintf("%d", d.Chunks),
			d.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"ID", "NAME", "TOKENS", "SENTENCES", "CHUNKS", "CREATED"}, rows))
	if page != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Page %d (%d total)\n", page.Page, page.Total)
	}
	return nil
}

func runDocumentShow(cmd *cobra.Command, documentID string) error {
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
		return printJSON(cmd, detail)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Document %s\n", detail.ID)
	fmt.Fprintf(out, "  Name:      %s\n", detail.Name)
	fmt.Fprintf(out, "  Tokens:    %d (%d sentences)\n", detail.TokenCount, detail.SentenceCount)
	if detail.Chunks > 0 {
		fmt.Fprintf(out, "  Chunks:    %d\n", detail.Chunks)
	}
	if detail.SourceID != "" {
		fmt.Fprintf(out, "  Source:    %s (token offset %d)\n", detail.SourceID, detail.SourceTokenOffset)
	}
	fmt.Fprintf(out, "  Entities:  %d\n", len(detail.Entities))
	fmt.Fprintf(out, "  Relations: %d\n", len(detail.Relations))
	fmt.Fprintf(out, "  Undo:      %d steps\n", detail.UndoDepth)
	if detail.Text != "" {
		fmt.Fprintf(out, "  Text:      %s\n", truncateString(detail.Text, 96))
	}
	return nil
}

func runDocumentRemove(cmd *cobra.Command, documentID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	if err := api.Documents().Delete(cmd.Context(), documentID); err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, map[string]string{"deleted": documentID})
	}

	PrintSuccess(cmd, fmt.Sprintf("deleted document %s", documentID))
	return nil
}

// newTokenizer builds a tokenizer honoring the pipeline configuration.
func newTokenizer(cliCtx *CLIContext) *tokenize.Tokenizer {
	var opts []tokenize.Option
	if cliCtx.Config != nil && cliCtx.Config.Pipeline.BoundaryRunes != "" {
		opts = append(opts, tokenize.WithBoundaryRunes(cliCtx.Config.Pipeline.BoundaryRunes))
	}
	return tokenize.NewTokenizer(opts...)
}

// docNameFromPath derives a document name from a file path.
func docNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
