package config

import "os"

// expandEnvRefs substitutes ${VAR} and $VAR references in raw YAML before
// it is parsed, so secrets and paths can live in the environment instead of
// the file. An unset variable becomes the empty string; the validator is
// responsible for rejecting required fields that end up empty.
func expandEnvRefs(data []byte) []byte {
	return []byte(os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	}))
}
