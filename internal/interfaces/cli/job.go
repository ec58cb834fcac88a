package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/pkg/client"
)

// Flags for the job commands.
var (
	trainDatasetVersion string
	trainConfigPath     string
	trainWait           bool
	trainPoll           time.Duration

	predictDatasetVersion string
	predictConfigPath     string
	predictWait           bool
	predictPoll           time.Duration

	jobListStates   []string
	jobListPage     int
	jobListPageSize int
)

// NewTrainCmd creates the train command. It submits a training job to the
// server and optionally waits for it to finish.
func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Submit a model training job",
		Long:  "Train submits a training job. The server fetches the named published\ndataset version into the job's work directory (when given), launches the\nexternal training process, and tracks its state. With --wait the command\nblocks until the job reaches a terminal state.",
		Example: `  spanmark train --dataset-version v1
  spanmark train --dataset-version v1 --wait
  spanmark train --model-config configs/span_train.conf --wait --poll 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmitJob(cmd, client.JobKindTrain, trainDatasetVersion, trainConfigPath, trainWait, trainPoll)
		},
	}

	cmd.Flags().StringVar(&trainDatasetVersion, "dataset-version", "", "published dataset version to train on")
	cmd.Flags().StringVar(&trainConfigPath, "model-config", "", "model config file passed to the training process")
	cmd.Flags().BoolVar(&trainWait, "wait", false, "block until the job finishes")
	cmd.Flags().DurationVar(&trainPoll, "poll", 2*time.Second, "poll interval while waiting")

	return cmd
}

// NewPredictCmd creates the predict command. It submits a prediction job;
// finished predictions are imported back into the corpus by the server.
func NewPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Submit a model prediction job",
		Long:  "Predict submits a prediction job. The external process writes a\npredictions dataset file, which the server imports back into the corpus\nwith model provenance when the job succeeds.",
		Example: `  spanmark predict --dataset-version v1 --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmitJob(cmd, client.JobKindPredict, predictDatasetVersion, predictConfigPath, predictWait, predictPoll)
		},
	}

	cmd.Flags().StringVar(&predictDatasetVersion, "dataset-version", "", "published dataset version to predict on")
	cmd.Flags().StringVar(&predictConfigPath, "model-config", "", "model config file passed to the prediction process")
	cmd.Flags().BoolVar(&predictWait, "wait", false, "block until the job finishes")
	cmd.Flags().DurationVar(&predictPoll, "poll", 2*time.Second, "poll interval while waiting")

	return cmd
}

func runSubmitJob(cmd *cobra.Command, kind, datasetVersion, configPath string, wait bool, poll time.Duration) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	job, err := api.Jobs().Submit(cmd.Context(), &client.SubmitJobRequest{
		Kind:           kind,
		DatasetVersion: datasetVersion,
		ConfigPath:     configPath,
	})
	if err != nil {
		return err
	}

	if !wait {
		if cliCtx.OutputFormat == "json" {
			return printJSON(cmd, job)
		}
		PrintSuccess(cmd, fmt.Sprintf("submitted %s job %s", job.Kind, job.ID))
		fmt.Fprintf(cmd.OutOrStdout(), "Check it with: spanmark job get %s\n", job.ID)
		return nil
	}

	if cliCtx.OutputFormat != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s job %s, waiting...\n", job.Kind, job.ID)
	}

	job, err = api.Jobs().Wait(cmd.Context(), job.ID, poll)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, job)
	}

	formatJob(cmd, job)
	return nil
}

// NewJobCmd creates the job command group for inspecting and canceling jobs.
func NewJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and cancel training and prediction jobs",
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List jobs",
		Example: `  spanmark job ls
  spanmark job ls --state running --state pending`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobList(cmd)
		},
	}
	lsCmd.Flags().StringSliceVar(&jobListStates, "state", nil, "filter by state (repeatable)")
	lsCmd.Flags().IntVar(&jobListPage, "page", 1, "page number")
	lsCmd.Flags().IntVar(&jobListPageSize, "page-size", 20, "page size")

	getCmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobGet(cmd, args[0])
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobCancel(cmd, args[0])
		},
	}

	cmd.AddCommand(lsCmd, getCmd, cancelCmd)
	return cmd
}

func runJobList(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	jobs, page, err := api.Jobs().List(cmd.Context(), &client.ListJobsRequest{
		States:   jobListStates,
		Page:     jobListPage,
		PageSize: jobListPageSize,
	})
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, jobs)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs.")
		return nil
	}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			truncateString(j.ID, 12),
			j.Kind,
			colorizeJobState(j.State),
			j.DatasetVersion,
			formatJobDuration(j),
			j.CreatedAt.Format(time.RFC3339),
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"ID", "KIND", "STATE", "DATASET", "DURATION", "CREATED"}, rows))
	if page != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Page %d (%d total)\n", page.Page, page.Total)
	}
	return nil
}

func runJobGet(cmd *cobra.Command, jobID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	job, err := api.Jobs().Get(cmd.Context(), jobID)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, job)
	}

	formatJob(cmd, job)
	return nil
}

func runJobCancel(cmd *cobra.Command, jobID string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := requireClient(cliCtx)
	if err != nil {
		return err
	}

	job, err := api.Jobs().Cancel(cmd.Context(), jobID)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, job)
	}

	PrintSuccess(cmd, fmt.Sprintf("job %s is now %s", job.ID, job.State))
	return nil
}

// formatJob renders one job for humans.
func formatJob(cmd *cobra.Command, job *client.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s\n", job.ID)
	fmt.Fprintf(out, "  Kind:    %s\n", job.Kind)
	fmt.Fprintf(out, "  State:   %s\n", colorizeJobState(job.State))
	if job.DatasetVersion != "" {
		fmt.Fprintf(out, "  Dataset: %s\n", job.DatasetVersion)
	}
	if job.WorkDir != "" {
		fmt.Fprintf(out, "  Workdir: %s\n", job.WorkDir)
	}
	if d := formatJobDuration(job); d != "" {
		fmt.Fprintf(out, "  Took:    %s\n", d)
	}
	if job.ExitCode != nil {
		fmt.Fprintf(out, "  Exit:    %d\n", *job.ExitCode)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error:   %s\n", color.RedString(job.Error))
	}
}

// formatJobDuration renders a job's runtime, empty until it has one.
func formatJobDuration(job *client.Job) string {
	if job.DurationMs <= 0 {
		return ""
	}
	return (time.Duration(job.DurationMs) * time.Millisecond).String()
}

// colorizeJobState colors a job state for terminal output.
func colorizeJobState(state string) string {
	switch state {
	case client.JobSucceeded:
		return color.GreenString(state)
	case client.JobFailed:
		return color.RedString(state)
	case client.JobRunning, client.JobPending:
		return color.YellowString(state)
	default:
		return state
	}
}
