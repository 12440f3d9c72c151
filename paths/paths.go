// Package paths returns platform and user-specific default paths for VOR's
// on-disk configuration, following the teacher's convention of hiding
// GOOS-specific path logic behind small, testable functions rather than a
// directories crate.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// HomeDir returns the VOR home directory: where VORConfig.json,
// VOR_PF.json and the VORAppConfigs directory live.
// original_source/config.rs hardcodes this per-GOOS
// (AppData/LocalLow/VRChat/VRChat/OSC/VOR on windows, ~/.vor on linux); OSX
// gets the same treatment here for completeness.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "LocalLow", "VRChat", "VRChat", "OSC", "VOR"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "VOR"), nil
	default:
		return filepath.Join(home, ".vor"), nil
	}
}

// AppConfigDir returns the directory holding one JSON file per RouteSpec,
// matching original_source/config.rs's `vor_app_configs_dir`.
func AppConfigDir(vorHome string) string {
	return filepath.Join(vorHome, "VORAppConfigs")
}

// RouterConfigPath returns the path to the RouterSpec document, matching
// original_source/config.rs's `vor_config_file`.
func RouterConfigPath(vorHome string) string {
	return filepath.Join(vorHome, "VORConfig.json")
}

// FilterConfigPath returns the path to the FilterSpec document, matching
// original_source/config.rs's `vor_pf_config_file`.
func FilterConfigPath(vorHome string) string {
	return filepath.Join(vorHome, "VOR_PF.json")
}

// EnsureDir creates dir (and its parents) if it does not already exist,
// reporting whether it created a new directory, mirroring
// original_source/main.rs's path_exists + fs::create_dir pair.
func EnsureDir(dir string) (created bool, err error) {
	if _, statErr := os.Stat(dir); statErr == nil {
		return false, nil
	} else if !os.IsNotExist(statErr) {
		return false, statErr
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	return true, nil
}
