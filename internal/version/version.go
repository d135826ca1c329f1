// Package version exposes build metadata injected with -ldflags.
package version

import (
	"strconv"
	"strings"
)

// Version values are set at build time using -ldflags.
var Version = "dev"
var Major = "0"
var Minor = "0"
var Patch = "0"
var Built = ""
var GitCommit = ""

const Name = "imgdash"

type VersionInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Name:      Name,
		Version:   Version,
		Major:     parseInt(Major),
		Minor:     parseInt(Minor),
		Patch:     parseInt(Patch),
		Built:     Built,
		GitCommit: GitCommit,
	}
}

// IsDev reports whether the binary was built without a release version.
func (info VersionInfo) IsDev() bool {
	version := strings.TrimSpace(info.Version)
	return version == "" || version == "dev"
}

// String renders the line printed by --version.
func (info VersionInfo) String() string {
	name := info.Name
	if name == "" {
		name = Name
	}
	if info.IsDev() {
		return name + " dev"
	}
	line := name + " version " + info.Version
	var details []string
	if info.GitCommit != "" {
		details = append(details, "commit "+info.GitCommit)
	}
	if info.Built != "" {
		details = append(details, "built "+info.Built)
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}

func parseInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
