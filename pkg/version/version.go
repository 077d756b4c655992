// Package version derives the engine's version string from the build
// metadata the Go toolchain embeds, so no -ldflags stamping is needed.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName identifies this engine in user agents and protocol handshakes.
const AppName = "runbookctl"

// GitCommit returns the short VCS revision baked into the binary, or "dev"
// for builds without VCS info (go test, non-git checkouts).
func GitCommit() string {
	commitOnce.Do(func() {
		commit = "dev"
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			if s.Key != "vcs.revision" || s.Value == "" {
				continue
			}
			commit = s.Value
			if len(commit) > 8 {
				commit = commit[:8]
			}
			return
		}
	})
	return commit
}

var (
	commitOnce sync.Once
	commit     string
)

// Full returns "runbookctl/<commit>" for logs and user-agent strings.
func Full() string {
	return AppName + "/" + GitCommit()
}
