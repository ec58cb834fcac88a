package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/internal/application/dataset"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/pkg/client"
)

// Flags for the dataset commands.
var (
	exportVersion       string
	exportOutputDir     string
	exportSeed          int64
	exportTrainRatio    float64
	exportDevRatio      float64
	exportTestRatio     float64
	exportIncludeChunks bool

	splitOutDir     string
	splitSeed       int64
	splitTrainRatio float64
	splitDevRatio   float64
	splitTestRatio  float64

	buildRawOut          string
	buildRawMinSentence  int
	buildRawClean        bool

	datasetImportClass  string
	datasetImportPrefix string

	publishVersion string
	publishDir     string
)

// NewExportCmd creates the export command. It asks the server for a
// versioned train/dev/test export of the annotated corpus.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a versioned train/dev/test dataset from the corpus",
		Long:  "Export writes a stratified train/dev/test split of every annotated\ndocument, plus the type taxonomy, into a version directory on the server.\nThe same version and seed always reproduce the same split.",
		Example: `  spanmark export --version v1
  spanmark export --version v2 --seed 42 --train-ratio 0.7 --dev-ratio 0.15 --test-ratio 0.15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd)
		},
	}

	cmd.Flags().StringVar(&exportVersion, "version", "", "dataset version label (required)")
	cmd.Flags().StringVar(&exportOutputDir, "output-dir", "", "server-side output directory (default: configured)")
	cmd.Flags().Int64Var(&exportSeed, "seed", 0, "split seed (default: configured or clock)")
	cmd.Flags().Float64Var(&exportTrainRatio, "train-ratio", 0, "train fraction (default: configured)")
	cmd.Flags().Float64Var(&exportDevRatio, "dev-ratio", 0, "dev fraction (default: configured)")
	cmd.Flags().Float64Var(&exportTestRatio, "test-ratio", 0, "test fraction (default: configured)")
	cmd.Flags().BoolVar(&exportIncludeChunks, "include-chunks", false, "also export chunk documents")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func runExport(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	result, err := api.Datasets().Export(cmd.Context(), &client.ExportRequest{
		Version:       exportVersion,
		OutputDir:     exportOutputDir,
		Ratios:        client.SplitRatios{Train: exportTrainRatio, Dev: exportDevRatio, Test: exportTestRatio},
		Seed:          exportSeed,
		IncludeChunks: exportIncludeChunks,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("exported %s to %s", result.Version, result.Dir))
	fmt.Fprint(cmd.OutOrStdout(), FormatTable(
		[]string{"TRAIN", "DEV", "TEST", "ENTITIES", "RELATIONS", "SEED"},
		[][]string{{
			fmt.Sprintf("%d", result.Train),
			fmt.Sprintf("%d", result.Dev),
			fmt.Sprintf("%d", result.Test),
			fmt.Sprintf("%d", result.Entities),
			fmt.Sprintf("%d", result.Relations),
			fmt.Sprintf("%d", result.Seed),
		}},
	))
	return nil
}

// NewDatasetCmd creates the dataset command group: local split and raw-build
// plus server-side import and publish.
func NewDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Work with dataset files",
	}

	splitCmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split a dataset file into train/dev/test locally",
		Long:  "Split stratifies one dataset file by each record's dominant relation\ntype and divides it into train/dev/test files next to the input (or into\n--out-dir). No server is required.",
		Example: `  spanmark dataset split corpus.json
  spanmark dataset split corpus.json --out-dir splits/ --seed 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetSplit(cmd, args[0])
		},
	}
	splitCmd.Flags().StringVar(&splitOutDir, "out-dir", "", "output directory (default: next to the input file)")
	splitCmd.Flags().Int64Var(&splitSeed, "seed", 0, "split seed (default: configured or clock)")
	splitCmd.Flags().Float64Var(&splitTrainRatio, "train-ratio", 0, "train fraction (default: configured)")
	splitCmd.Flags().Float64Var(&splitDevRatio, "dev-ratio", 0, "dev fraction (default: configured)")
	splitCmd.Flags().Float64Var(&splitTestRatio, "test-ratio", 0, "test fraction (default: configured)")

	buildRawCmd := &cobra.Command{
		Use:   "build-raw <file>...",
		Short: "Build a raw dataset file from text corpora locally",
		Long:  "Build-raw sentence-segments one or more text files into an unannotated\ndataset file suitable as prediction input, dropping sentences below the\nminimum token count. No server is required.",
		Example: `  spanmark dataset build-raw corpus/*.txt --out raw.json
  spanmark dataset build-raw alice.txt --out raw.json --clean --min-sentence-tokens 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetBuildRaw(cmd, args)
		},
	}
	buildRawCmd.Flags().StringVar(&buildRawOut, "out", "", "output dataset file (required)")
	buildRawCmd.Flags().IntVar(&buildRawMinSentence, "min-sentence-tokens", 0, "shortest sentence kept (default: configured)")
	buildRawCmd.Flags().BoolVar(&buildRawClean, "clean", false, "run the corpus cleaner before tokenizing")
	_ = buildRawCmd.MarkFlagRequired("out")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a dataset file into the corpus",
		Long:  "Import points the server at a dataset file on its filesystem; the server\npersists each record as a document with its annotation set. The file\nclass decides the annotations' provenance: gold imports as manual,\nprediction as model output, raw imports without annotations.",
		Example: `  spanmark dataset import train.json --class gold
  spanmark dataset import predictions.json --class prediction --name-prefix run7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetImport(cmd, args[0])
		},
	}
	importCmd.Flags().StringVar(&datasetImportClass, "class", "", "file class: gold, prediction, or raw (required)")
	importCmd.Flags().StringVar(&datasetImportPrefix, "name-prefix", "", "document name prefix (default: file stem)")
	_ = importCmd.MarkFlagRequired("class")

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an exported dataset version to object storage",
		Example: `  spanmark dataset publish --version v1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetPublish(cmd)
		},
	}
	publishCmd.Flags().StringVar(&publishVersion, "version", "", "dataset version label (required)")
	publishCmd.Flags().StringVar(&publishDir, "dir", "", "server-side version directory (default: export location)")
	_ = publishCmd.MarkFlagRequired("version")

	cmd.AddCommand(splitCmd, buildRawCmd, importCmd, publishCmd)
	return cmd
}

// localDatasetService builds a dataset service wired for file-only
// operations: no repositories, no object store, no events.
func localDatasetService(cliCtx *CLIContext) dataset.Service {
	return dataset.NewService(dataset.Dependencies{
		Tokenizer: newTokenizer(cliCtx),
		Cleaner:   tokenize.NewCleaner(),
		Dataset:   cliCtx.Config.Dataset,
		Pipeline:  cliCtx.Config.Pipeline,
	}, cliCtx.Logger)
}

func runDatasetSplit(cmd *cobra.Command, path string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	svc := localDatasetService(cliCtx)
	result, err := svc.SplitFile(cmd.Context(), &dataset.SplitFileInput{
		Path:   path,
		OutDir: splitOutDir,
		Ratios: dataset.Ratios{Train: splitTrainRatio, Dev: splitDevRatio, Test: splitTestRatio},
		Seed:   splitSeed,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("split %s into %s (train %d, dev %d, test %d, seed %d)",
		path, result.Dir, result.Train, result.Dev, result.Test, result.Seed))
	return nil
}

func runDatasetBuildRaw(cmd *cobra.Command, paths []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	svc := localDatasetService(cliCtx)
	result, err := svc.BuildRaw(cmd.Context(), &dataset.BuildRawInput{
		Paths:             paths,
		OutPath:           buildRawOut,
		MinSentenceTokens: buildRawMinSentence,
		Clean:             buildRawClean,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("built %s from %d file(s): %d sentences kept, %d dropped",
		result.OutPath, result.Files, result.Sentences, result.Dropped))
	return nil
}

func runDatasetImport(cmd *cobra.Command, path string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	result, err := api.Datasets().Import(cmd.Context(), &client.ImportRequest{
		Path:       path,
		Class:      datasetImportClass,
		NamePrefix: datasetImportPrefix,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("imported %d %s document(s) (%d entities, %d relations)",
		result.Documents, result.Class, result.Entities, result.Relations))
	return nil
}

func runDatasetPublish(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	result, err := api.Datasets().Publish(cmd.Context(), &client.PublishRequest{
		Version: publishVersion,
		Dir:     publishDir,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, result)
	}

	PrintSuccess(cmd, fmt.Sprintf("published %s to %s (%d files, %d bytes)",
		result.Version, result.Location, result.Files, result.Bytes))
	return nil
}
