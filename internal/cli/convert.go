package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Siddarth2230/asset-labels/pkg/idgen"
)

var convertWidth int

var encodeCmd = &cobra.Command{
	Use:   "encode <value>...",
	Short: "Convert counter values to labels",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := idgen.NewEncoder(convertWidth)
		tbl := newTable(cmd.OutOrStdout(), "VALUE", "LABEL")
		for _, arg := range args {
			v, err := strconv.ParseInt(arg, 10, 64)
			if err != nil || v < 0 {
				return fmt.Errorf("%q is not a non-negative integer", arg)
			}
			tbl.AddRow(v, enc.Encode(v))
		}
		tbl.Print()
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <label>...",
	Short: "Convert labels to counter values",
	Long:  "Decode accepts labels as typed by hand: case and surrounding spaces are ignored.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := idgen.NewEncoder(convertWidth)
		tbl := newTable(cmd.OutOrStdout(), "LABEL", "VALUE")
		for _, arg := range args {
			v, err := enc.Decode(idgen.Normalize(arg))
			if err != nil {
				return err
			}
			tbl.AddRow(enc.Encode(v), v)
		}
		tbl.Print()
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{encodeCmd, decodeCmd} {
		c.Flags().IntVarP(&convertWidth, "width", "w", idgen.DefaultWidth, "minimum label width")
	}
}
