package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/internal/infrastructure/database/redis"
	"github.com/spanmark/spanmark/internal/nlp/gazetteer"
	"github.com/spanmark/spanmark/pkg/errors"
)

// Flags for the gazetteer commands.
var (
	gazetteerImportReplace bool
	gazetteerLoadLimit     int
)

// NewGazetteerCmd creates the gazetteer command group. These commands talk
// to the redis term store directly, not through the API server.
func NewGazetteerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gazetteer",
		Short: "Manage the shared gazetteer lexicon",
		Long:  "The gazetteer commands maintain the lexicon term store that the server\nand worker load their matchers from. They connect to redis directly\nusing the redis settings from the configuration.",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a lexicon file into the term store",
		Long:  "Import streams a lexicon file (.jsonl, .csv, or .tsv of term/type pairs)\ninto the redis term store. Imports append; --replace clears the store\nfirst.",
		Example: `  spanmark gazetteer import lexicons/characters.jsonl
  spanmark gazetteer import lexicons/full.csv --replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGazetteerImport(cmd, args[0])
		},
	}
	importCmd.Flags().BoolVar(&gazetteerImportReplace, "replace", false, "clear the term store before importing")

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Show what the term store currently holds",
		Long:  "Load fetches every entry from the redis term store and summarizes it:\ntotal count, per-type counts, and a sample of terms. This is what a\nfreshly started server or worker will see.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGazetteerLoad(cmd)
		},
	}
	loadCmd.Flags().IntVar(&gazetteerLoadLimit, "limit", 20, "number of sample terms to list")

	cmd.AddCommand(importCmd, loadCmd)
	return cmd
}

// gazetteerImportResult is the import subcommand's output payload.
type gazetteerImportResult struct {
	File     string `json:"file"`
	Imported int    `json:"imported"`
	Cleared  int64  `json:"cleared,omitempty"`
	Total    int    `json:"total"`
}

func runGazetteerImport(cmd *cobra.Command, path string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	entries, err := readLexiconEntries(path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.Newf(errors.ErrCodeLexiconReadFailed, "lexicon %s holds no entries", path)
	}

	store, closeStore, err := openTermStore(cliCtx)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	result := &gazetteerImportResult{File: path}

	if gazetteerImportReplace {
		cleared, err := store.Clear(ctx)
		if err != nil {
			return err
		}
		result.Cleared = cleared
	}

	imported, err := store.Import(ctx, entries)
	if err != nil {
		return err
	}
	result.Imported = imported

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	result.Total = total

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	msg := fmt.Sprintf("imported %d entries from %s (store now holds %d)", result.Imported, path, result.Total)
	if gazetteerImportReplace {
		msg = fmt.Sprintf("cleared %d keys, %s", result.Cleared, msg)
	}
	PrintSuccess(cmd, msg)
	return nil
}

// gazetteerLoadResult is the load subcommand's output payload.
type gazetteerLoadResult struct {
	Total  int               `json:"total"`
	Types  map[string]int    `json:"types"`
	Sample []gazetteer.Entry `json:"sample"`
}

func runGazetteerLoad(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	store, closeStore, err := openTermStore(cliCtx)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}

	result := &gazetteerLoadResult{
		Total: len(entries),
		Types: map[string]int{},
	}
	for _, e := range entries {
		result.Types[e.Type]++
	}
	sample := entries
	if gazetteerLoadLimit > 0 && len(sample) > gazetteerLoadLimit {
		sample = sample[:gazetteerLoadLimit]
	}
	result.Sample = sample

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	if result.Total == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Term store is empty.")
		return nil
	}

	typeNames := make([]string, 0, len(result.Types))
	for name := range result.Types {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	fmt.Fprintf(cmd.OutOrStdout(), "Term store holds %d entries:\n", result.Total)
	typeRows := make([][]string, 0, len(typeNames))
	for _, name := range typeNames {
		typeRows = append(typeRows, []string{name, fmt.Sprintf("%d", result.Types[name])})
	}
	fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"TYPE", "TERMS"}, typeRows))

	if len(result.Sample) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "First %d terms:\n", len(result.Sample))
		sampleRows := make([][]string, 0, len(result.Sample))
		for _, e := range result.Sample {
			sampleRows = append(sampleRows, []string{truncateString(e.Term, 48), e.Type})
		}
		fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"TERM", "TYPE"}, sampleRows))
	}
	return nil
}

// openTermStore connects to redis and returns the term store plus a cleanup
// function.
func openTermStore(cliCtx *CLIContext) (*redis.TermStore, func(), error) {
	client, err := redis.NewClient(cliCtx.Config.Redis, cliCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	store := redis.NewTermStore(client, cliCtx.Logger)
	return store, func() { _ = client.Close() }, nil
}

// readLexiconEntries drains a lexicon file into memory.
func readLexiconEntries(path string) ([]gazetteer.Entry, error) {
	reader, err := gazetteer.ReaderForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLexiconReadFailed, fmt.Sprintf("open lexicon %s", path))
	}
	defer f.Close()

	entryCh, errCh := reader.Read(f)
	var entries []gazetteer.Entry
	for e := range entryCh {
		entries = append(entries, e)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return entries, nil
}
