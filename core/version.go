package core

import "strings"

// Build metadata, injected with:
//
//	go build -ldflags "-X eegstream/core.Version=v1.2.0 -X eegstream/core.GitCommit=$(git rev-parse --short HEAD)" .
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersionInfo returns e.g. "v1.2.0 (built 2024-01-15T10:30:00Z, commit abc1234)".
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}

// BuildLdflags returns the -ldflags value that injects the given metadata.
// Empty arguments are skipped.
func BuildLdflags(version, buildTime, gitCommit string) string {
	var flags []string
	for _, kv := range [][2]string{
		{"Version", version},
		{"BuildTime", buildTime},
		{"GitCommit", gitCommit},
	} {
		if kv[1] != "" {
			flags = append(flags, "-X eegstream/core."+kv[0]+"="+kv[1])
		}
	}
	return strings.Join(flags, " ")
}
