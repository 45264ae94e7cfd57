package cli

import (
	"github.com/aryanagg/si206-final/internal/etl"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newStatusCmd prints the watermark and persisted count of every dataset.
func newStatusCmd(sourcesFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the watermark and row count of each dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(*sourcesFile)
			if err != nil {
				return err
			}
			defer s.Close()

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"Dataset", "Table", "Slicing", "Batch cap", "Watermark", "Persisted"})

			for _, name := range s.catalog.Names() {
				schema, err := s.schema(name)
				if err != nil {
					return err
				}
				store, err := s.store(ctx, schema)
				if err != nil {
					return err
				}
				wm, err := store.ReadWatermark(ctx)
				if err != nil {
					return err
				}
				count, err := store.CountRecords(ctx)
				if err != nil {
					return err
				}
				tw.AppendRow(table.Row{name, schema.Table, schema.SlicingPolicy(), schema.BatchCap, wm, count})
			}

			tw.Render()
			return nil
		},
	}
}

// newShowCmd lists the persisted records of one dataset as a table or CSV.
func newShowCmd(sourcesFile *string) *cobra.Command {
	var (
		dataset string
		opts    etl.ListOptions
		asCSV   bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the persisted records of a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(*sourcesFile)
			if err != nil {
				return err
			}
			defer s.Close()

			schema, err := s.schema(dataset)
			if err != nil {
				return err
			}
			store, err := s.store(ctx, schema)
			if err != nil {
				return err
			}
			records, err := store.List(ctx, opts)
			if err != nil {
				return err
			}

			columns := schema.Columns()
			header := table.Row{"natural_key"}
			for _, c := range columns {
				header = append(header, c)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(header)
			for _, rec := range records {
				row := table.Row{rec.Key}
				for _, c := range columns {
					row = append(row, rec.Values[c])
				}
				tw.AppendRow(row)
			}

			if asCSV {
				tw.RenderCSV()
			} else {
				tw.Render()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset to list")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "Column to sort by (defaults to the natural key)")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "Sort in descending order")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Maximum number of rows")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Write CSV instead of a table")
	cmd.MarkFlagRequired("dataset")

	return cmd
}
