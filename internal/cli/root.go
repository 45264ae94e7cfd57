package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var sourcesFile string

	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest - incremental loader for public datasets",
		Long: `ingest fetches public datasets (COVID deaths, country population, air pollution)
and commits a bounded slice of new records per run, tracking progress with a
persisted watermark so repeated runs resume where the last one stopped.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&sourcesFile, "sources", "s", "configs/sources.json5", "Path to the sources file")

	rootCmd.AddCommand(
		NewRunCmd(&sourcesFile),
		newStatusCmd(&sourcesFile),
		newShowCmd(&sourcesFile),
	)

	return rootCmd
}
