package dummy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/trimtab-dev/trimtab/internal/plugin"
)

// qualityDefinitionName is the definition whose minimum value is read
// out of a quality profile.
const qualityDefinitionName = "Bluray-1080p"

// qualityProfile is one quality definition profile file from the
// metadata directory.
type qualityProfile struct {
	TrashID   string `json:"trash_id"`
	Qualities []struct {
		Quality string   `json:"quality"`
		Min     *float64 `json:"min"`
	} `json:"qualities"`
}

// Render implements plugin.Renderer: when trash_id is configured, the
// matching quality profile is read from the metadata directory and its
// minimum value fills trash_value and trash_value2, unless the user
// set them explicitly. No network I/O happens here.
func (p *Plugin) Render(ctx context.Context, env plugin.Env, inst plugin.Instance) (plugin.Instance, error) {
	cfg := inst.(*Instance)
	if cfg.Settings.TrashID == "" {
		return inst, nil
	}
	if env.MetadataDir == "" {
		return nil, fmt.Errorf("trash_id is set but no metadata directory is configured")
	}

	minValue, err := lookupQualityMin(env.MetadataDir, cfg.Settings.TrashID)
	if err != nil {
		return nil, err
	}

	out := cfg.copy()
	if !out.Settings.IsSet("trash_value") {
		value := minValue
		out.Settings.TrashValue = &value
		out.Settings.markSet("trash_value")
	}
	if !out.Settings.IsSet("trash_value2") {
		value := minValue
		out.Settings.TrashValue2 = &value
		out.Settings.markSet("trash_value2")
	}
	env.Logger().Debug("rendered quality definition value", "trash_id", cfg.Settings.TrashID, "value", minValue)
	return out, nil
}

// lookupQualityMin scans the quality definition profiles in the
// metadata directory for the given profile ID and returns the minimum
// value of the Bluray-1080p definition.
func lookupQualityMin(metadataDir, trashID string) (float64, error) {
	dir := filepath.Join(metadataDir, "docs", "json", "sonarr", "quality-size")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading quality definition directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("reading quality definition file %q: %w", path, err)
		}
		var profile qualityProfile
		if err := json.Unmarshal(raw, &profile); err != nil {
			return 0, fmt.Errorf("parsing quality definition file %q: %w", path, err)
		}
		if !strings.EqualFold(profile.TrashID, trashID) {
			continue
		}
		for _, quality := range profile.Qualities {
			if quality.Quality != qualityDefinitionName {
				continue
			}
			if quality.Min == nil {
				return 0, fmt.Errorf("quality definition %q in profile %q has no minimum value", qualityDefinitionName, trashID)
			}
			return *quality.Min, nil
		}
		return 0, fmt.Errorf("quality definition %q not found in profile %q", qualityDefinitionName, trashID)
	}
	return 0, fmt.Errorf("unable to find a quality definition file with trash ID %q", trashID)
}
