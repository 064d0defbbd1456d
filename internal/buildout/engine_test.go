package buildout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"buildout/internal/types"
	"buildout/internal/zoning"
)

func TestEngineRun_MixedSystemParcel(t *testing.T) {
	frags := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 40000, ShapeArea: 90000, SewerJoin: 4},
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 40000, ShapeArea: 5000, SewerJoin: types.NoJoin, SepticDensity: 1},
	}

	eng := New(WithLogger(zap.NewNop()))
	evaluated, err := eng.Evaluate(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, evaluated, 2)
	assert.Equal(t, types.SystemSewer, evaluated[0].System)
	assert.Equal(t, 2, evaluated[0].CZBuildout)
	assert.Equal(t, 2, evaluated[0].NO3Buildout)
	assert.Equal(t, types.SystemSeptic, evaluated[1].System)
	assert.Equal(t, 0, evaluated[1].CZBuildout)
	assert.Equal(t, 0, evaluated[1].NO3Buildout)

	parcels, err := eng.Run(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, parcels, 1)

	p := parcels[0]
	assert.Equal(t, types.ParcelKey{ParcelID: "P1", ZoneID: "Z1", System: types.SystemMixed}, p.ParcelKey)
	assert.Equal(t, types.Buildout{CZ: 2, NO3: 2, CanSplit: true}, p.Pre)
	assert.Nil(t, p.Post)

	// Input is left untouched.
	assert.Equal(t, types.System(""), frags[0].System)
	assert.Equal(t, 0, frags[0].CZBuildout)
}

func TestEngineRun_PreservedLand(t *testing.T) {
	frags := []types.ParcelFragment{
		{ParcelID: "P9", ZoneID: "OS", MinLot: 0, ShapeArea: 100000, SewerJoin: 1},
	}

	parcels, err := New(WithLogger(zap.NewNop())).Run(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, parcels, 1)
	assert.Equal(t, types.SystemSewer, parcels[0].System)
	assert.Equal(t, types.Buildout{CZ: 1, NO3: 1, CanSplit: false}, parcels[0].Pre)
}

func TestEngineRun_ZeroFragmentNotPromoted(t *testing.T) {
	frags := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 35000, SewerJoin: 1},
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 500, SewerJoin: 1},
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 700, SewerJoin: 1},
	}

	parcels, err := New(WithLogger(zap.NewNop())).Run(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, parcels, 1)
	assert.Equal(t, 3, parcels[0].Pre.CZ)
	assert.Equal(t, 3, parcels[0].Pre.NO3)
}

func TestEngineRun_PresetSystemIsKept(t *testing.T) {
	frags := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 100000, SewerJoin: types.NoJoin, System: types.SystemSewer, SepticDensity: 5},
	}
	parcels, err := New(WithLogger(zap.NewNop())).Run(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, parcels, 1)
	assert.Equal(t, types.SystemSewer, parcels[0].System)
	assert.Equal(t, 10, parcels[0].Pre.NO3)
}

func TestEngineRun_OrderIndependentAcrossWorkers(t *testing.T) {
	var frags []types.ParcelFragment
	for i := 0; i < 5000; i++ {
		sewer := i
		if i%3 == 0 {
			sewer = types.NoJoin
		}
		frags = append(frags, types.ParcelFragment{
			ParcelID:      fmt.Sprintf("P%03d", i%250),
			ZoneID:        fmt.Sprintf("Z%d", i%4),
			MinLot:        float64(5000 * (1 + i%5)),
			ShapeArea:     float64(1000 + (i*7919)%90000),
			SepticDensity: 0.5 + float64(i%3)*0.5,
			SewerJoin:     sewer,
		})
	}
	reversed := make([]types.ParcelFragment, len(frags))
	for i := range frags {
		reversed[len(frags)-1-i] = frags[i]
	}

	serial, err := New(WithWorkers(1), WithLogger(zap.NewNop())).Run(context.Background(), frags)
	require.NoError(t, err)
	parallel, err := New(WithWorkers(8), WithLogger(zap.NewNop())).Run(context.Background(), reversed)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
	for _, p := range serial {
		assert.GreaterOrEqual(t, p.Pre.CZ, 1)
		assert.GreaterOrEqual(t, p.Pre.NO3, 1)
	}
}

func TestEngineEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frag  types.ParcelFragment
		field string
	}{
		{name: "negative area", frag: types.ParcelFragment{ParcelID: "P1", ZoneID: "Z1", ShapeArea: -1}, field: "shape_area"},
		{name: "NaN area", frag: types.ParcelFragment{ParcelID: "P1", ZoneID: "Z1", ShapeArea: math.NaN()}, field: "shape_area"},
		{name: "negative min lot", frag: types.ParcelFragment{ParcelID: "P1", ZoneID: "Z1", MinLot: -3}, field: "min_lot_size"},
		{name: "negative septic density", frag: types.ParcelFragment{ParcelID: "P1", ZoneID: "Z1", SepticDensity: -0.1}, field: "septic_density"},
		{name: "missing parcel id", frag: types.ParcelFragment{ZoneID: "Z1"}, field: "parcel_id"},
		{name: "missing zone id", frag: types.ParcelFragment{ParcelID: "P1"}, field: "zone_id"},
		{name: "unknown system", frag: types.ParcelFragment{ParcelID: "P1", ZoneID: "Z1", System: "CESSPOOL"}, field: "system"},
		{name: "lot count overflow", frag: types.ParcelFragment{ParcelID: "P1", ZoneID: "Z1", MinLot: 1, ShapeArea: 1e20, SewerJoin: 1}, field: "min_lot_size"},
		{
			name:  "septic lot count overflow",
			frag:  types.ParcelFragment{ParcelID: "P1", ZoneID: "Z1", MinLot: 1e12, ShapeArea: 1e19, SepticDensity: 1e-12, SewerJoin: types.NoJoin},
			field: "septic_density",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags := []types.ParcelFragment{
				{ParcelID: "OK", ZoneID: "Z1", MinLot: 1000, ShapeArea: 5000},
				tt.frag,
			}
			_, err := New(WithLogger(zap.NewNop())).Run(context.Background(), frags)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFragment))

			var fe *FragmentError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, 1, fe.Index)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestEngineEvaluate_LotLimit(t *testing.T) {
	frags := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 1, ShapeArea: math.MaxInt32, SewerJoin: 1},
		// Septic density only bounds septic fragments.
		{ParcelID: "P2", ZoneID: "Z1", MinLot: 1e12, ShapeArea: 1e19, SepticDensity: 1e-12, SewerJoin: 1},
	}

	got, err := New(WithLogger(zap.NewNop())).Evaluate(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, math.MaxInt32, got[0].CZBuildout)
	assert.Equal(t, 10000000, got[1].CZBuildout)
	assert.Equal(t, got[1].CZBuildout, got[1].NO3Buildout)
}

func TestEngineEvaluate_Filters(t *testing.T) {
	frags := []types.ParcelFragment{
		{ParcelID: "", ZoneID: "Z1", MinLot: 1000, ShapeArea: 500, ParcelJoin: types.NoJoin},
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 1000, ShapeArea: 5000, WatershedJoin: types.NoJoin},
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 1000, ShapeArea: 500},
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 1000, ShapeArea: 5000},
	}

	core, logs := observer.New(zap.InfoLevel)
	got, err := New(WithLogger(zap.New(core))).Evaluate(context.Background(), frags)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	entries := logs.FilterMessage("buildout: evaluated fragments").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["dropped_unparceled"])
	assert.Equal(t, int64(1), fields["dropped_unwatershed"])

	strict := Filters{DropUnparceled: true, DropUnwatershed: true, RequireMinLot: true}
	got, err = New(WithFilters(strict), WithLogger(zap.NewNop())).Evaluate(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5000.0, got[0].ShapeArea)

	_, err = New(WithFilters(Filters{}), WithLogger(zap.NewNop())).Evaluate(context.Background(), frags)
	require.Error(t, err, "unparceled sliver without a parcel id must fail when not filtered")
}

func TestEngineEvaluate_Classifier(t *testing.T) {
	p, ok := zoning.DefaultRegistry().Profile(zoning.CarneysPoint)
	require.True(t, ok)

	frags := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "HR", MinLot: 0, ShapeArea: 10000, SewerJoin: 1},
		{ParcelID: "P2", ZoneID: "UNLISTED", MinLot: 2000, ShapeArea: 10000, SewerJoin: 1},
		{ParcelID: "P3", ZoneID: "OS", MinLot: 5000, ShapeArea: 100000, SewerJoin: 1},
	}

	got, err := New(WithClassifier(zoning.NewClassifier(p)), WithLogger(zap.NewNop())).Evaluate(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3500.0, got[0].MinLot)
	assert.Equal(t, 2, got[0].CZBuildout)
	assert.Equal(t, 2000.0, got[1].MinLot)
	assert.Equal(t, 5, got[1].CZBuildout)
	assert.Equal(t, 0.0, got[2].MinLot)
	assert.Equal(t, 0, got[2].CZBuildout)
}

func TestEngineEvaluate_UnclassifiedCodesLogged(t *testing.T) {
	frags := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "HR", MinLot: 3500, ShapeArea: 10000, SewerJoin: 1},
		{ParcelID: "P2", ZoneID: "UNLISTED", MinLot: 2000, ShapeArea: 10000, SewerJoin: 1},
	}

	tests := []struct {
		name       string
		profile    zoning.Jurisdiction
		wantCount  bool
		wantUnlist int64
	}{
		{name: "code table", profile: zoning.CarneysPoint, wantCount: true, wantUnlist: 1},
		{name: "passthrough", profile: zoning.Passthrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := zoning.DefaultRegistry().Profile(tt.profile)
			core, logs := observer.New(zap.InfoLevel)
			_, err := New(WithClassifier(zoning.NewClassifier(p)), WithLogger(zap.New(core))).
				Evaluate(context.Background(), frags)
			require.NoError(t, err)

			entries := logs.FilterMessage("buildout: evaluated fragments").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, string(tt.profile), fields["jurisdiction"])
			got, ok := fields["unclassified_codes"]
			assert.Equal(t, tt.wantCount, ok)
			if tt.wantCount {
				assert.Equal(t, tt.wantUnlist, got)
			}
		})
	}
}

func TestEngineEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frags := []types.ParcelFragment{{ParcelID: "P1", ZoneID: "Z1", MinLot: 1, ShapeArea: 10}}
	_, err := New(WithLogger(zap.NewNop())).Evaluate(ctx, frags)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngineRunPrePost(t *testing.T) {
	pre := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 120000, SewerJoin: 1},
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 30000, SewerJoin: types.NoJoin, SepticDensity: 0.25},
		{ParcelID: "P2", ZoneID: "Z1", MinLot: 10000, ShapeArea: 50000, SewerJoin: types.NoJoin, SepticDensity: 1},
	}
	// Wetlands erased from P1's septic part and most of P2.
	post := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 60000, SewerJoin: 1},
		{ParcelID: "P2", ZoneID: "Z1", MinLot: 10000, ShapeArea: 9000, SewerJoin: types.NoJoin, SepticDensity: 1},
	}

	core, logs := observer.New(zap.WarnLevel)
	parcels, err := New(WithLogger(zap.New(core))).RunPrePost(context.Background(), pre, post)
	require.NoError(t, err)
	require.Len(t, parcels, 2)
	assert.Equal(t, 0, logs.Len())

	p1 := parcels[0]
	assert.Equal(t, types.ParcelKey{ParcelID: "P1", ZoneID: "Z1", System: types.SystemMixed}, p1.ParcelKey)
	// 120000/10000 = 12 sewer; septic 30000 > 2*10890, floor(30000/10890) = 2.
	assert.Equal(t, types.Buildout{CZ: 15, NO3: 14, CanSplit: true}, p1.Pre)
	require.NotNil(t, p1.Post)
	assert.Equal(t, types.Buildout{CZ: 6, NO3: 6, CanSplit: true}, *p1.Post)

	p2 := parcels[1]
	assert.Equal(t, types.SystemSeptic, p2.System)
	// 50000 > 2*10000 gives cz 5; 50000 < 2*43560 gives no3 0 -> 1.
	assert.Equal(t, types.Buildout{CZ: 5, NO3: 1, CanSplit: true}, p2.Pre)
	assert.Equal(t, types.Buildout{CZ: 1, NO3: 1, CanSplit: false}, *p2.Post)
	assert.True(t, p2.Pre.CanSplit)
	assert.False(t, p2.Splittable())
}

func TestEngineRunPrePost_WarnsOnBoundViolation(t *testing.T) {
	pre := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 30000, SewerJoin: 1},
	}
	post := []types.ParcelFragment{
		{ParcelID: "P1", ZoneID: "Z1", MinLot: 10000, ShapeArea: 90000, SewerJoin: 1},
	}

	core, logs := observer.New(zap.WarnLevel)
	parcels, err := New(WithLogger(zap.New(core))).RunPrePost(context.Background(), pre, post)
	require.NoError(t, err)
	require.Len(t, parcels, 1)
	assert.Equal(t, 1, logs.FilterMessage("buildout: post-erasure buildout exceeds pre-erasure").Len())
}
