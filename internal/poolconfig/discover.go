package poolconfig

import (
	"os"
	"strings"
)

// ConfigEnvVar names a pool config file that overrides the default paths.
const ConfigEnvVar = "RESQUE_POOL_CONFIG"

// DefaultConfigFiles are tried in order when ConfigEnvVar is unset.
var DefaultConfigFiles = []string{"resque-pool.yml", "config/resque-pool.yml"}

// ChooseConfigFile discovers the pool config file using the process
// environment and file system.
func ChooseConfigFile() (string, error) {
	return DiscoverConfigFile(os.LookupEnv, fileExists)
}

// DiscoverConfigFile returns the ConfigEnvVar path when set, whether or not
// it exists, otherwise the first existing default path.
func DiscoverConfigFile(lookupEnv func(string) (string, bool), exists func(string) bool) (string, error) {
	if custom, ok := lookupEnv(ConfigEnvVar); ok && strings.TrimSpace(custom) != "" {
		return strings.TrimSpace(custom), nil
	}
	for _, candidate := range DefaultConfigFiles {
		if exists(candidate) {
			return candidate, nil
		}
	}
	return "", ErrNoConfigFile
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
