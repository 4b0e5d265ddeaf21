// Package buildinfo reports which Tick binary is running. Release builds
// stamp the variables below with -ldflags; plain "go build" and "go
// install" binaries fall back to the VCS settings the toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Stamped at link time, e.g.
//
//	-X github.com/nugget/tick/internal/buildinfo.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

const unknown = "unknown"

var started = time.Now()

type vcsStamp struct {
	revision string
	time     string
	modified bool
}

var readVCS = sync.OnceValue(func() vcsStamp {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vcsStamp{}
	}
	return stampFromSettings(bi.Settings)
})

func stampFromSettings(settings []debug.BuildSetting) vcsStamp {
	var v vcsStamp
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time = s.Value
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}
	return v
}

// Commit is the short revision the binary was built from. A "-dirty"
// suffix marks a build from a modified work tree.
func Commit() string {
	return resolveCommit(GitCommit, readVCS())
}

func resolveCommit(stamped string, v vcsStamp) string {
	if stamped != "" {
		return stamped
	}
	if v.revision == "" {
		return unknown
	}
	rev := v.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if v.modified {
		rev += "-dirty"
	}
	return rev
}

// Built is the build (or last commit) timestamp.
func Built() string {
	switch {
	case BuildTime != "":
		return BuildTime
	case readVCS().time != "":
		return readVCS().time
	}
	return unknown
}

// Info feeds GET /v1/version and "tick version".
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": Commit(),
		"build_time": Built(),
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// Uptime is whole seconds since the process started.
func Uptime() time.Duration {
	return time.Since(started).Truncate(time.Second)
}

// UserAgent identifies Tick to the model provider.
func UserAgent() string {
	return fmt.Sprintf("Tick/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

func String() string {
	return fmt.Sprintf("Tick %s (%s) built %s", Version, Commit(), Built())
}
