// Package version хранит сведения о сборке, проставляемые через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// BuildInfo: сведения о сборке для JSON-ответов.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Build возвращает сведения о сборке одной структурой.
func Build() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, Date: date}
}

// Version возвращает только номер версии.
func Version() string { return version }

func String() string {
	b := Build()
	return fmt.Sprintf("oda version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}
