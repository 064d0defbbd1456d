package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"buildout/internal/table"
	"buildout/internal/types"
	"buildout/internal/zoning"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Assign minimum lot size and density to a zoning layer",
	Long: "Classifies each zone with the selected code table and lists preserved zones " +
		"(minimum lot 0), which the geometry step treats as a development constraint.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		zoningName, _ := cmd.Flags().GetString("zoning-name")
		output, _ := cmd.Flags().GetString("output")
		preservedOut, _ := cmd.Flags().GetString("preserved")

		if zoningName == "" {
			zoningName = datasetName(input)
		}
		classifier, err := resolveClassifier(cfg, jurisdiction, zoningName)
		if err != nil {
			return err
		}

		zones, err := table.ReadZones(cmd.Context(), input, cfg.Fields)
		if err != nil {
			return err
		}
		classified, err := classifier.ClassifyZones(zones)
		if err != nil {
			return err
		}
		preserved := zoning.PreservedZones(classified)

		renderZones(os.Stdout, classifier.Jurisdiction(), classified)

		if output != "" {
			if err := table.WriteZones(output, classified, cfg.Fields); err != nil {
				return err
			}
			fmt.Printf("Classified zones written to %s\n", output)
		}
		if preservedOut != "" {
			if err := table.WriteZones(preservedOut, preserved, cfg.Fields); err != nil {
				return err
			}
			fmt.Printf("%d preserved zones written to %s\n", len(preserved), preservedOut)
		}
		return nil
	},
}

func init() {
	zonesCmd.Flags().String("input", "", "zoning layer (.shp or delimited)")
	zonesCmd.Flags().String("jurisdiction", "", "zoning code table (carneys-point, oldmans, passthrough or a custom name)")
	zonesCmd.Flags().String("zoning-name", "", "layer name used to infer the jurisdiction (default: input file name)")
	zonesCmd.Flags().String("output", "", "write the classified layer here")
	zonesCmd.Flags().String("preserved", "", "write only the preserved zones here")
	_ = zonesCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(zonesCmd)
}

// renderZones prints one line per zone with preserved zones highlighted.
func renderZones(w io.Writer, j zoning.Jurisdiction, zones []types.ZoneRecord) {
	fmt.Fprintf(w, "Jurisdiction: %s (%d zones)\n", j, len(zones))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ZONE\tMIN LOT (SQ FT)\tDENSITY (DU/SQ FT)\t")
	preserved, unclassified := 0, 0
	for _, z := range zones {
		note := ""
		switch {
		case z.MinLotMissing:
			unclassified++
			fmt.Fprintf(tw, "%s\t-\t-\tunclassified\n", z.ZoneID)
			continue
		case z.Preserved():
			preserved++
			note = colorRed + "preserved" + colorReset
		}
		fmt.Fprintf(tw, "%s\t%.0f\t%.8f\t%s\n", z.ZoneID, z.MinLot, z.ResDensity, note)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d preserved\n", preserved)
	if unclassified > 0 {
		fmt.Fprintf(w, "%d unclassified (no MINLOT and no code table entry)\n", unclassified)
	}
}
