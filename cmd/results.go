package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"buildout/internal/types"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored runs or browse a run's parcels",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		runID, _ := cmd.Flags().GetString("run")
		splittable, _ := cmd.Flags().GetBool("splittable")
		order, _ := cmd.Flags().GetString("sort")
		deleteID, _ := cmd.Flags().GetString("delete")

		if err := validSort(order); err != nil {
			return err
		}

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if deleteID != "" {
			if err := db.DeleteRun(ctx, deleteID); err != nil {
				return err
			}
			fmt.Printf("Deleted run %s\n", deleteID)
			return nil
		}

		if runID == "" {
			runs, err := db.ListRuns(ctx)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(os.Stderr, "No runs found.")
				return nil
			}
			formatRuns(os.Stdout, runs)
			return nil
		}

		var parcels []types.AggregatedParcel
		if splittable {
			parcels, err = db.QuerySplittable(ctx, runID)
		} else {
			parcels, err = db.QueryParcels(ctx, runID)
		}
		if err != nil {
			return err
		}
		fmt.Printf("\nFound %d parcels in run %s\n", len(parcels), runID)
		if len(parcels) == 0 {
			return nil
		}

		sortParcels(parcels, order)
		lines := make([]string, len(parcels))
		for i, p := range parcels {
			lines[i] = parcelLine(p)
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		}
		interactiveSelect(lines, func(i int) { renderParcel(os.Stdout, parcels[i]) })
		return nil
	},
}

func init() {
	resultsCmd.Flags().String("run", "", "run id to browse (default: list runs)")
	resultsCmd.Flags().Bool("splittable", false, "only parcels that can be subdivided")
	resultsCmd.Flags().String("sort", "parcel", "parcel order: parcel or buildout")
	resultsCmd.Flags().String("delete", "", "delete a stored run")
	rootCmd.AddCommand(resultsCmd)
}

func validSort(order string) error {
	switch order {
	case "parcel", "buildout":
		return nil
	}
	return eris.Errorf("results: unknown sort %q (want parcel or buildout)", order)
}

// effective returns the post-erasure buildout when present.
func effective(p types.AggregatedParcel) types.Buildout {
	if p.Post != nil {
		return *p.Post
	}
	return p.Pre
}

// sortParcels orders by key, or by effective buildout (current zoning desc,
// then nitrate desc) for "buildout".
func sortParcels(parcels []types.AggregatedParcel, order string) {
	sort.SliceStable(parcels, func(i, j int) bool {
		if order == "buildout" {
			a, b := effective(parcels[i]), effective(parcels[j])
			if a.CZ != b.CZ {
				return a.CZ > b.CZ
			}
			if a.NO3 != b.NO3 {
				return a.NO3 > b.NO3
			}
		}
		return parcels[i].ParcelKey.Less(parcels[j].ParcelKey)
	})
}

func parcelLine(p types.AggregatedParcel) string {
	b := effective(p)
	split := "no"
	if p.Splittable() {
		split = "yes"
	}
	return fmt.Sprintf("%-20s | %-8s | %-12s | CZ: %4d | NO3: %4d | Split: %s",
		p.ParcelID, p.ZoneID, p.System, b.CZ, b.NO3, split)
}

func yesNo(b bool) string {
	if b {
		return colorGreen + "yes" + colorReset
	}
	return colorRed + "no" + colorReset
}

// renderParcel prints the full record for one parcel.
func renderParcel(w io.Writer, p types.AggregatedParcel) {
	fmt.Fprintf(w, "Parcel:     %s\n", p.ParcelID)
	fmt.Fprintf(w, "Zone:       %s\n", p.ZoneID)
	fmt.Fprintf(w, "System:     %s\n", p.System)
	fmt.Fprintf(w, "Fragments:  %d\n", p.Fragments)
	fmt.Fprintf(w, "Current zoning buildout: %d\n", p.Pre.CZ)
	fmt.Fprintf(w, "Nitrate buildout:        %d\n", p.Pre.NO3)
	fmt.Fprintf(w, "Can split:               %s\n", yesNo(p.Pre.CanSplit))
	if p.Post != nil {
		fmt.Fprintf(w, "After erasure:\n")
		fmt.Fprintf(w, "  Current zoning buildout: %d\n", p.Post.CZ)
		fmt.Fprintf(w, "  Nitrate buildout:        %d\n", p.Post.NO3)
		fmt.Fprintf(w, "  Can split:               %s\n", yesNo(p.Post.CanSplit))
	}
	if p.Shape != nil {
		fmt.Fprintf(w, "Polygons:   %d\n", p.Shape.NumPolygons())
	}
}

func formatRuns(w io.Writer, runs []types.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMUNICIPALITY\tJURISDICTION\tPARCELS\tSPLITTABLE\tPRE/POST\tCREATED\t")
	for _, r := range runs {
		prePost := "no"
		if r.PrePost {
			prePost = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t\n",
			r.ID, r.Municipality, r.Jurisdiction, r.Parcels, r.Splittable, prePost,
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}
