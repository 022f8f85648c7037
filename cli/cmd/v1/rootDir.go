package cmd

import (
	"os"
	"path/filepath"
)

// RootDir is where the config file, settings, usage tracking and the price
// cache live.
func RootDir() (dirPath string, err error) {
	if customEnv, ok := os.LookupEnv("REMOTE_HOME"); ok && customEnv != "" {
		return customEnv, nil
	}
	var home string
	home, err = os.UserHomeDir()
	if err != nil {
		return
	}
	dirPath = filepath.Join(home, ".config", "remote.py")
	return
}

func ConfigFileName() (cfgFile string, err error) {
	cfgFile = os.Getenv("REMOTE_CONFIG_FILE")
	if cfgFile == "" {
		var home string
		home, err = RootDir()
		if err != nil {
			return
		}
		cfgFile = filepath.Join(home, "config.ini")
	}
	return
}
