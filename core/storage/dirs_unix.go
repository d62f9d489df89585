//go:build !windows

package storage

import "path/filepath"

// platformDefaults lays out the XDG fallbacks under home.
func platformDefaults(home string) Dirs {
	return Dirs{
		Config: filepath.Join(home, ".config", appName),
		Data:   filepath.Join(home, ".local", "share", appName),
		Cache:  filepath.Join(home, ".cache", appName),
		State:  filepath.Join(home, ".local", "state", appName),
	}
}
