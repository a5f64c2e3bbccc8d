package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LayoutFileEnv names the optional YAML file that overrides the layout block.
const LayoutFileEnv = "LAYOUT_CONFIG_FILE"

// LoadLayoutFile overlays the YAML file at path onto base. Keys absent from
// the file keep the values of base.
//
//	grid_size: 10
//	snap_threshold: 4
//	cache_ttl: 168h
func LoadLayoutFile(path string, base Layout) (Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read layout config: %w", err)
	}
	out := base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return base, fmt.Errorf("parse layout config %s: %w", path, err)
	}
	if err := out.Validate(); err != nil {
		return base, fmt.Errorf("layout config %s: %w", path, err)
	}
	return out, nil
}

// LoadWithOverlay is Load followed by the YAML overlay named by
// LAYOUT_CONFIG_FILE, when set.
func LoadWithOverlay() (Config, error) {
	cfg := Load()
	path := os.Getenv(LayoutFileEnv)
	if path == "" {
		return cfg, cfg.Layout.Validate()
	}
	layout, err := LoadLayoutFile(path, cfg.Layout)
	if err != nil {
		return cfg, err
	}
	cfg.Layout = layout
	return cfg, nil
}

func (l Layout) Validate() error {
	switch {
	case l.CellSize <= 0:
		return fmt.Errorf("cell_size must be positive")
	case l.GridSize < 0 || l.SnapThreshold < 0 || l.PlacementGap < 0:
		return fmt.Errorf("grid_size, snap_threshold and placement_gap must not be negative")
	case l.MinWidth < 0 || l.MinHeight < 0:
		return fmt.Errorf("minimum sizes must not be negative")
	case l.MaxWidth > 0 && l.MaxWidth < l.MinWidth:
		return fmt.Errorf("max_width below min_width")
	case l.MaxHeight > 0 && l.MaxHeight < l.MinHeight:
		return fmt.Errorf("max_height below min_height")
	case l.DefaultWidth <= 0 || l.DefaultHeight <= 0:
		return fmt.Errorf("default panel size must be positive")
	case l.PixelsPerFoot <= 0:
		return fmt.Errorf("pixels_per_foot must be positive")
	case l.CacheTTL <= 0:
		return fmt.Errorf("cache_ttl must be positive")
	}
	return nil
}
