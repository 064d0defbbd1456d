package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"buildout/internal/table"
)

var thinnessCmd = &cobra.Command{
	Use:   "thinness",
	Short: "Append the THINNESS shape ratio to a dissolved result table",
	Long:  "Computes 4*pi*area/perimeter^2 per row; 1 is a circle, values near 0 are slivers.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")

		n, err := table.AppendThinness(input, output, cfg.Fields)
		if err != nil {
			return err
		}
		fmt.Printf("THINNESS added to %d rows in %s\n", n, output)
		return nil
	},
}

func init() {
	thinnessCmd.Flags().String("input", "", "delimited table with area and perimeter columns")
	thinnessCmd.Flags().String("output", "", "output table")
	_ = thinnessCmd.MarkFlagRequired("input")
	_ = thinnessCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(thinnessCmd)
}
