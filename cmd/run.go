package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"buildout/internal/buildout"
	"buildout/internal/database"
	"buildout/internal/table"
	"buildout/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute parcel buildout from an overlay table",
	Long: "Reads the zoning/parcel/sewer/watershed overlay, computes current-zoning and nitrate " +
		"buildout per fragment, aggregates to parcels and writes <muni>_final_result.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fragmentsPath, _ := cmd.Flags().GetString("fragments")
		postPath, _ := cmd.Flags().GetString("post-fragments")
		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		zoningName, _ := cmd.Flags().GetString("zoning-name")
		muni, _ := cmd.Flags().GetString("muni")
		output, _ := cmd.Flags().GetString("output")
		save, _ := cmd.Flags().GetBool("save")

		if zoningName == "" {
			zoningName = datasetName(fragmentsPath)
		}
		if muni == "" {
			muni = datasetName(fragmentsPath)
		}
		if output == "" {
			output = defaultOutput(fragmentsPath, muni)
		}

		return runBuildout(cmd.Context(), runOptions{
			fragments:    fragmentsPath,
			post:         postPath,
			jurisdiction: jurisdiction,
			zoningName:   zoningName,
			muni:         muni,
			output:       output,
			save:         save,
		})
	},
}

func init() {
	runCmd.Flags().String("fragments", "", "overlay table (.shp, .csv, .tsv or pipe-delimited)")
	runCmd.Flags().String("post-fragments", "", "overlay table after environmental erasure; enables pre/post output")
	runCmd.Flags().String("jurisdiction", "", "zoning code table (carneys-point, oldmans, passthrough or a custom name)")
	runCmd.Flags().String("zoning-name", "", "zoning layer name used to infer the jurisdiction")
	runCmd.Flags().String("muni", "", "municipality name for the output (default: fragments file name)")
	runCmd.Flags().String("output", "", "output path (default: <muni>_final_result.csv next to the input)")
	runCmd.Flags().Bool("save", false, "store the run in the results database")
	_ = runCmd.MarkFlagRequired("fragments")
	rootCmd.AddCommand(runCmd)
}

type runOptions struct {
	fragments    string
	post         string
	jurisdiction string
	zoningName   string
	muni         string
	output       string
	save         bool
}

// defaultOutput places <muni>_final_result next to the input, keeping
// shapefile inputs as shapefiles.
func defaultOutput(input, muni string) string {
	ext := ".csv"
	if table.IsShapefile(input) {
		ext = ".shp"
	}
	return filepath.Join(filepath.Dir(input), muni+"_final_result"+ext)
}

func runBuildout(ctx context.Context, opts runOptions) error {
	start := time.Now()
	log := zap.L().With(zap.String("muni", opts.muni))

	classifier, err := resolveClassifier(cfg, opts.jurisdiction, opts.zoningName)
	if err != nil {
		return err
	}

	frags, err := table.ReadFragments(ctx, opts.fragments, cfg.Fields)
	if err != nil {
		return err
	}

	engine := buildout.New(
		buildout.WithClassifier(classifier),
		buildout.WithFilters(cfg.Engine.Filters()),
		buildout.WithWorkers(cfg.Engine.Workers),
		buildout.WithLogger(log),
	)

	var parcels []types.AggregatedParcel
	if opts.post != "" {
		post, err := table.ReadFragments(ctx, opts.post, cfg.Fields)
		if err != nil {
			return err
		}
		parcels, err = engine.RunPrePost(ctx, frags, post)
		if err != nil {
			return err
		}
	} else {
		parcels, err = engine.Run(ctx, frags)
		if err != nil {
			return err
		}
	}

	if err := table.WriteParcels(opts.output, parcels, cfg.Fields); err != nil {
		return err
	}

	s := summarize(parcels)
	fmt.Printf("%s%d parcels%s (%d splittable, %d fragments) written to %s in %v\n",
		colorGreen, s.parcels, colorReset, s.splittable, s.fragments, opts.output,
		time.Since(start).Truncate(time.Millisecond))

	if !opts.save {
		return nil
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := db.SaveRun(ctx, types.Run{
		Municipality: opts.muni,
		Jurisdiction: string(classifier.Jurisdiction()),
		Source:       opts.fragments,
	}, parcels)
	if err != nil {
		return err
	}
	fmt.Printf("Saved run %s\n", runID)
	return nil
}

type runSummary struct {
	parcels    int
	splittable int
	fragments  int
}

func summarize(parcels []types.AggregatedParcel) runSummary {
	s := runSummary{parcels: len(parcels)}
	for _, p := range parcels {
		if p.Splittable() {
			s.splittable++
		}
		s.fragments += p.Fragments
	}
	return s
}

// openDatabase connects to the configured results store and migrates it.
func openDatabase(ctx context.Context) (*database.Database, error) {
	db, err := database.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "open database")
	}
	return db, nil
}
