package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/SutekhVRC/VOR/config"
	"github.com/SutekhVRC/VOR/paths"
)

// loadedConfig is everything discovered on disk for one engine run.
type loadedConfig struct {
	Router RouterConfig
	Filter config.FilterSpec
	Routes []config.RouteSpec
}

// RouterConfig is an alias kept local to cmd/vor so bootstrapConfigs reads
// naturally; it is exactly config.RouterSpec.
type RouterConfig = config.RouterSpec

// bootstrapConfigs reproduces original_source/config.rs::read_configs: it
// creates the VOR home directory and VORAppConfigs directory on first run,
// writes default VORConfig.json/VOR_PF.json documents if missing or
// unparsable, and loads every *.json file in VORAppConfigs as a RouteSpec.
// A per-app file that fails to parse is skipped, not fatal (spec.md §7
// distinguishes configuration errors that abort startup from a single bad
// route file, which the original also just skips with a log line).
func bootstrapConfigs(vorHome string) (loadedConfig, error) {
	if _, err := paths.EnsureDir(vorHome); err != nil {
		return loadedConfig{}, fmt.Errorf("vor: create home dir %s: %w", vorHome, err)
	}
	appDir := paths.AppConfigDir(vorHome)
	if _, err := paths.EnsureDir(appDir); err != nil {
		return loadedConfig{}, fmt.Errorf("vor: create app config dir %s: %w", appDir, err)
	}

	routerSpec, err := loadOrWriteDefault(paths.RouterConfigPath(vorHome), config.DefaultRouterSpec())
	if err != nil {
		return loadedConfig{}, err
	}
	filterSpec, err := loadOrWriteDefault(paths.FilterConfigPath(vorHome), config.DefaultFilterSpec())
	if err != nil {
		return loadedConfig{}, err
	}

	entries, err := os.ReadDir(appDir)
	if err != nil {
		return loadedConfig{}, fmt.Errorf("vor: read app config dir %s: %w", appDir, err)
	}
	var routes []config.RouteSpec
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(appDir, ent.Name()))
		if err != nil {
			continue
		}
		rs, err := config.DecodeRouteSpec(data)
		if err != nil {
			continue
		}
		rs.Index = len(routes)
		routes = append(routes, rs)
	}

	return loadedConfig{Router: routerSpec, Filter: filterSpec, Routes: routes}, nil
}

// loadOrWriteDefault reads and decodes path, writing def (marshaled) in its
// place whenever the file is missing or fails to parse, matching the
// original's overwrite-on-corruption behavior.
func loadOrWriteDefault[T any](path string, def T) (T, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var v T
		if jsonErr := json.Unmarshal(data, &v); jsonErr == nil {
			return v, nil
		}
	}
	out, err := json.Marshal(def)
	if err != nil {
		return def, fmt.Errorf("vor: marshal default config for %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return def, fmt.Errorf("vor: write default config %s: %w", path, err)
	}
	return def, nil
}
