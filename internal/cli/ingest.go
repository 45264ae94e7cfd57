package cli

import (
	"github.com/spf13/cobra"
)

type RunOptions struct {
	SourcesFile string
	Datasets    []string
	All         bool
	BatchSize   int
	Slicing     string
	DryRun      bool
}

func NewRunCmd(sourcesFile *string) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch datasets and commit the next slice of new records",
		Example: `  ingest run -d covid_deaths
  ingest run --all --dry-run`,
		RunE: func(c *cobra.Command, args []string) error {
			opts.SourcesFile = *sourcesFile
			return runIngest(c, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Datasets, "dataset", "d", nil, "Dataset(s) to ingest")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Ingest every dataset in the sources file")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Override the dataset's batch cap")
	cmd.Flags().StringVar(&opts.Slicing, "slicing", "", "Override the slicing policy (key or positional)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would be added without committing")
	cmd.MarkFlagsOneRequired("dataset", "all")
	cmd.MarkFlagsMutuallyExclusive("dataset", "all")

	return cmd
}
