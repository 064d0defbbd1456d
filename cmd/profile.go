package main

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"buildout/internal/config"
	"buildout/internal/zoning"
)

// resolveClassifier picks the code table for a run: an explicit jurisdiction
// wins, then the configured one, then inference from the zoning layer name.
func resolveClassifier(c *config.Config, jurisdiction, zoningName string) (*zoning.Classifier, error) {
	registry := zoning.DefaultRegistry()
	if c.Zoning.Tables != "" {
		if err := registry.LoadFile(c.Zoning.Tables); err != nil {
			return nil, err
		}
	}

	name := zoning.Jurisdiction(jurisdiction)
	if name == "" {
		name = zoning.Jurisdiction(c.Zoning.Jurisdiction)
	}
	if name == "" {
		name = zoning.InferJurisdiction(zoningName)
		zap.L().Debug("zoning: inferred jurisdiction", zap.String("layer", zoningName), zap.String("jurisdiction", string(name)))
	}

	profile, ok := registry.Profile(name)
	if !ok && name != zoning.Passthrough {
		zap.L().Warn("zoning: unrecognized jurisdiction, zones pass through unchanged",
			zap.String("jurisdiction", string(name)),
			zap.Any("known", registry.Names()))
	}
	return zoning.NewClassifier(profile), nil
}

// datasetName strips directory and extension from a layer path.
func datasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
