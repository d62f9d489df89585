//go:build windows

package storage

import (
	"os"
	"path/filepath"
)

// platformDefaults keeps config and models in the roaming profile and
// regenerable data in the local one.
func platformDefaults(home string) Dirs {
	roaming := os.Getenv("APPDATA")
	if roaming == "" {
		roaming = filepath.Join(home, "AppData", "Roaming")
	}
	local := os.Getenv("LOCALAPPDATA")
	if local == "" {
		local = filepath.Join(home, "AppData", "Local")
	}
	return Dirs{
		Config: filepath.Join(roaming, appName, "config"),
		Data:   filepath.Join(roaming, appName, "data"),
		Cache:  filepath.Join(local, appName, "cache"),
		State:  filepath.Join(local, appName, "state"),
	}
}
