package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Siddarth2230/asset-labels/internal/service"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the counter and items tables",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
		if err := e.backend.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema ready on %s\n", e.backend.Name())
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the counter and label usage",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
		st, err := e.labels.Status(cmd.Context())
		if err != nil {
			return err
		}
		last := st.LastLabel
		if last == "" {
			last = "-"
		}
		tbl := newTable(cmd.OutOrStdout(), "FIELD", "VALUE")
		tbl.AddRow("backend", st.Backend)
		tbl.AddRow("current", st.Current)
		tbl.AddRow("last label", last)
		tbl.AddRow("items", st.Items)
		tbl.AddRow("unused", st.Unused)
		tbl.Print()
		return nil
	}),
}

var reserveCount int

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "Reserve labels for pre-printing",
	Long: `Reserve advances the counter and prints the new labels. Reserved labels are
never handed out again; attach them to items with POST /items and a "label" field.`,
	Args: cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
		if reserveCount < 1 || reserveCount > service.MaxBatch {
			return fmt.Errorf("--count must be between 1 and %d: given %d", service.MaxBatch, reserveCount)
		}
		var labels []string
		if reserveCount == 1 {
			var gen idgen.Generator = e.alloc
			label, err := gen.Generate(cmd.Context())
			if err != nil {
				return err
			}
			labels = []string{label}
		} else {
			var err error
			if labels, err = e.alloc.ReserveBatch(cmd.Context(), reserveCount); err != nil {
				return err
			}
		}
		tbl := newTable(cmd.OutOrStdout(), "#", "LABEL")
		for i, label := range labels {
			tbl.AddRow(i+1, label)
		}
		tbl.Print()
		return nil
	}),
}

var listFrom, listTo string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued labels and the items holding them",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
		infos, err := e.labels.ListLabels(cmd.Context(), listFrom, listTo)
		if err != nil {
			return err
		}
		tbl := newTable(cmd.OutOrStdout(), "LABEL", "VALUE", "ISSUED", "ITEM")
		for _, info := range infos {
			item := "-"
			if info.ItemName != nil {
				item = *info.ItemName
			}
			tbl.AddRow(info.Label, info.Value, info.Issued, item)
		}
		tbl.Print()
		return nil
	}),
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a label range to an .xlsx sheet",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
		buf, err := e.labels.ExportLabels(cmd.Context(), listFrom, listTo)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", exportOut)
		return nil
	}),
}

func init() {
	reserveCmd.Flags().IntVarP(&reserveCount, "count", "n", 1, "number of labels to reserve")

	for _, c := range []*cobra.Command{listCmd, exportCmd} {
		c.Flags().StringVar(&listFrom, "from", "", "first label (default: first issued)")
		c.Flags().StringVar(&listTo, "to", "", "last label (default: last issued)")
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "labels.xlsx", "output file")
}
