package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildout/internal/config"
	"buildout/internal/database"
	"buildout/internal/table"
	"buildout/internal/types"
	"buildout/internal/zoning"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Log: config.LogConfig{Level: "info", Format: "json"},
		Engine: config.EngineConfig{
			DropUnparceled:  true,
			DropUnwatershed: true,
		},
		Fields:   table.DefaultFieldMap(),
		Database: database.DBConfig{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "buildout.db")},
	}
}

func useConfig(t *testing.T, c *config.Config) {
	t.Helper()
	orig := cfg
	cfg = c
	t.Cleanup(func() { cfg = orig })
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "zones", "results", "thinness"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "buildout", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"fragments", "post-fragments", "jurisdiction", "zoning-name", "muni", "output", "save"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s", name)
	}
	assert.Equal(t, "false", runCmd.Flags().Lookup("save").DefValue)
}

func TestResultsCommand_Flags(t *testing.T) {
	flag := resultsCmd.Flags().Lookup("sort")
	require.NotNil(t, flag)
	assert.Equal(t, "parcel", flag.DefValue)
	require.NotNil(t, resultsCmd.Flags().Lookup("splittable"))
	require.NotNil(t, resultsCmd.Flags().Lookup("run"))
}

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "oldmans_final_result.csv"), defaultOutput(filepath.Join("data", "overlay.txt"), "oldmans"))
	assert.Equal(t, filepath.Join("data", "cp_final_result.shp"), defaultOutput(filepath.Join("data", "overlay.shp"), "cp"))
}

func TestDatasetName(t *testing.T) {
	assert.Equal(t, "CARNEYS_zoning", datasetName(filepath.Join("gis", "CARNEYS_zoning.shp")))
	assert.Equal(t, "overlay", datasetName("overlay"))
}

func TestResolveClassifier(t *testing.T) {
	c := testConfig(t)

	cl, err := resolveClassifier(c, "", "OLDMANS_ZONING")
	require.NoError(t, err)
	assert.Equal(t, zoning.Oldmans, cl.Jurisdiction())

	cl, err = resolveClassifier(c, "carneys-point", "OLDMANS_ZONING")
	require.NoError(t, err)
	assert.Equal(t, zoning.CarneysPoint, cl.Jurisdiction(), "explicit jurisdiction wins")

	c.Zoning.Jurisdiction = "oldmans"
	cl, err = resolveClassifier(c, "", "CARNEY")
	require.NoError(t, err)
	assert.Equal(t, zoning.Oldmans, cl.Jurisdiction(), "configured jurisdiction beats inference")

	cl, err = resolveClassifier(c, "nowhere", "")
	require.NoError(t, err)
	assert.Equal(t, zoning.Passthrough, cl.Jurisdiction())
}

func TestResolveClassifier_CustomTables(t *testing.T) {
	c := testConfig(t)
	c.Zoning.Tables = filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(c.Zoning.Tables, []byte("jurisdictions:\n  - name: pilesgrove\n    codes:\n      R-1: 43560\n"), 0644))

	cl, err := resolveClassifier(c, "pilesgrove", "")
	require.NoError(t, err)
	minLot, _, ok := cl.Lookup("R-1")
	assert.True(t, ok)
	assert.Equal(t, 43560.0, minLot)

	c.Zoning.Tables = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = resolveClassifier(c, "pilesgrove", "")
	assert.Error(t, err)
}

func TestReadKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  key
	}{
		{"ansi up", "\x1b[A", keyUp},
		{"ansi down", "\x1b[B", keyDown},
		{"ansi left", "\x1b[D", keyLeft},
		{"ansi right", "\x1b[C", keyRight},
		{"bare esc", "\x1b", keyQuit},
		{"alt key", "\x1bx", keyNone},
		{"windows up", "\xe0H", keyUp},
		{"windows down", "\x00P", keyDown},
		{"windows left", "\xe0K", keyLeft},
		{"windows right", "\xe0M", keyRight},
		{"enter", "\r", keyEnter},
		{"newline", "\n", keyEnter},
		{"ctrl-c", "\x03", keyQuit},
		{"q", "q", keyQuit},
		{"other", "x", keyNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := readKey(bufio.NewReader(strings.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}

	_, err := readKey(bufio.NewReader(strings.NewReader("")))
	assert.Error(t, err)
}

func TestPager(t *testing.T) {
	p := &pager{n: 45, size: 20}
	assert.Equal(t, 3, p.pages())

	assert.False(t, p.apply(keyUp))
	assert.False(t, p.apply(keyLeft))

	for i := 0; i < 19; i++ {
		require.True(t, p.apply(keyDown))
	}
	assert.False(t, p.apply(keyDown), "stops at the page end")
	assert.Equal(t, 19, p.index())

	assert.True(t, p.apply(keyRight))
	assert.Equal(t, 20, p.index())
	assert.True(t, p.apply(keyRight))
	start, end := p.bounds()
	assert.Equal(t, 40, start)
	assert.Equal(t, 45, end)

	for i := 0; i < 4; i++ {
		require.True(t, p.apply(keyDown))
	}
	assert.False(t, p.apply(keyDown), "last page is short")
	assert.Equal(t, 44, p.index())
	assert.False(t, p.apply(keyRight))

	assert.True(t, p.apply(keyLeft))
	assert.Equal(t, 20, p.index())
	assert.False(t, p.apply(keyNone))
}

func aggregated(id string, cz, no3 int, split bool) types.AggregatedParcel {
	return types.AggregatedParcel{
		ParcelKey: types.ParcelKey{ParcelID: id, ZoneID: "R1", System: types.SystemSeptic},
		Pre:       types.Buildout{CZ: cz, NO3: no3, CanSplit: split},
		Fragments: 1,
	}
}

func TestSortParcels(t *testing.T) {
	parcels := []types.AggregatedParcel{
		aggregated("C", 5, 1, true),
		aggregated("A", 1, 1, false),
		aggregated("B", 5, 3, true),
	}

	sortParcels(parcels, "buildout")
	assert.Equal(t, "B", parcels[0].ParcelID)
	assert.Equal(t, "C", parcels[1].ParcelID)
	assert.Equal(t, "A", parcels[2].ParcelID)

	sortParcels(parcels, "parcel")
	assert.Equal(t, "A", parcels[0].ParcelID)
	assert.Equal(t, "C", parcels[2].ParcelID)

	withPost := aggregated("D", 9, 9, true)
	withPost.Post = &types.Buildout{CZ: 1, NO3: 1}
	parcels = append(parcels, withPost)
	sortParcels(parcels, "buildout")
	assert.Equal(t, "D", parcels[3].ParcelID, "post-erasure buildout drives the order")

	assert.NoError(t, validSort("buildout"))
	assert.Error(t, validSort("acres"))
}

func TestParcelLineAndDetail(t *testing.T) {
	p := aggregated("1101_12_3", 10, 4, true)
	p.Post = &types.Buildout{CZ: 3, NO3: 1, CanSplit: true}

	line := parcelLine(p)
	assert.Contains(t, line, "1101_12_3")
	assert.Contains(t, line, "CZ:    3")
	assert.Contains(t, line, "Split: yes")

	var buf bytes.Buffer
	renderParcel(&buf, p)
	out := buf.String()
	assert.Contains(t, out, "Parcel:     1101_12_3")
	assert.Contains(t, out, "Current zoning buildout: 10")
	assert.Contains(t, out, "After erasure:")
	assert.Contains(t, out, "  Nitrate buildout:        1")
}

func TestFormatRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(&buf, []types.Run{
		{ID: "abc", Municipality: "oldmans", Jurisdiction: "oldmans", Parcels: 12, Splittable: 3, PrePost: true, CreatedAt: time.Now()},
	})
	out := buf.String()
	assert.Contains(t, out, "MUNICIPALITY")
	assert.Contains(t, out, "oldmans")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "yes")
}

func TestRenderZones(t *testing.T) {
	var buf bytes.Buffer
	renderZones(&buf, zoning.Oldmans, []types.ZoneRecord{
		{ZoneID: "R1", MinLot: 43560, ResDensity: 1.0 / 43560},
		{ZoneID: "OS", MinLot: 0},
		{ZoneID: "XYZ", MinLotMissing: true},
	})
	out := buf.String()
	assert.Contains(t, out, "Jurisdiction: oldmans (3 zones)")
	assert.Contains(t, out, "43560")
	assert.Contains(t, out, "preserved")
	assert.Contains(t, out, "unclassified")
	assert.Contains(t, out, "1 preserved")
	assert.Contains(t, out, "1 unclassified")
}

func TestRunBuildout_EndToEnd(t *testing.T) {
	c := testConfig(t)
	useConfig(t, c)

	dir := t.TempDir()
	input := filepath.Join(dir, "mixed.csv")
	require.NoError(t, os.WriteFile(input, []byte(strings.Join([]string{
		"PAMS_PIN,Zone_ID,MINLOT,Shape_Area,SEPDENS,FID_muni_sewer_service_area,FID_muni_parcels,FID_muni_NO3_densities",
		"P1,Z1,40000,90000,0,4,1,1",
		"P1,Z1,40000,5000,1,-1,1,1",
		"P2,OS,0,100000,0,1,2,1",
		",Z1,40000,300,0,1,-1,1",
	}, "\n")+"\n"), 0644))

	ctx := context.Background()
	output := defaultOutput(input, "mixed")
	err := runBuildout(ctx, runOptions{
		fragments:    input,
		jurisdiction: "passthrough",
		muni:         "mixed",
		output:       output,
		save:         true,
	})
	require.NoError(t, err)

	header, rows, err := table.ReadRows(output)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAMS_PIN", "Zone_ID", "SYSTEM", "CZ_BLDOUT", "NO3_BLDOUT", "CANSPLIT", "FRAGMENTS"}, header)
	assert.Equal(t, [][]string{
		{"P1", "Z1", "SEWER/SEPTIC", "2", "2", "1", "2"},
		{"P2", "OS", "SEWER", "1", "1", "0", "1"},
	}, rows)

	db, err := openDatabase(ctx)
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "mixed", runs[0].Municipality)
	assert.Equal(t, "passthrough", runs[0].Jurisdiction)
	assert.Equal(t, 2, runs[0].Parcels)
	assert.Equal(t, 1, runs[0].Splittable)

	split, err := db.QuerySplittable(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, split, 1)
	assert.Equal(t, "P1", split[0].ParcelID)
}

func TestRunBuildout_PrePost(t *testing.T) {
	useConfig(t, testConfig(t))

	dir := t.TempDir()
	header := "PAMS_PIN,Zone_ID,MINLOT,Shape_Area,SYSTEM"
	pre := filepath.Join(dir, "pre.csv")
	post := filepath.Join(dir, "post.csv")
	require.NoError(t, os.WriteFile(pre, []byte(header+"\nP1,R1,10000,50000,SEWER\n"), 0644))
	require.NoError(t, os.WriteFile(post, []byte(header+"\nP1,R1,10000,15000,SEWER\n"), 0644))

	output := filepath.Join(dir, "out.csv")
	require.NoError(t, runBuildout(context.Background(), runOptions{
		fragments:    pre,
		post:         post,
		jurisdiction: "passthrough",
		muni:         "pre",
		output:       output,
	}))

	hdr, rows, err := table.ReadRows(output)
	require.NoError(t, err)
	assert.Equal(t, "CZBO_PRE", hdr[3])
	assert.Equal(t, [][]string{{"P1", "R1", "SEWER", "5", "1", "5", "1", "1", "0", "1"}}, rows)
}

func TestRunBuildout_MissingInput(t *testing.T) {
	useConfig(t, testConfig(t))
	err := runBuildout(context.Background(), runOptions{
		fragments: filepath.Join(t.TempDir(), "nope.csv"),
		output:    filepath.Join(t.TempDir(), "out.csv"),
	})
	assert.Error(t, err)
}
