package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Build identifies the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

var (
	buildMu      sync.RWMutex
	currentBuild = Build{Version: "dev", GoVersion: runtime.Version()}
	buildOnce    sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "vcsync build information.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo records the build and exports it as build_info{version,commit,go_version} 1.
// An empty commit falls back to the VCS revision stamped by the Go toolchain.
func InitBuildInfo(version, commit string) Build {
	if commit == "" || commit == "dev" {
		if rev := vcsRevision(); rev != "" {
			commit = rev
		}
	}
	b := Build{Version: version, Commit: commit, GoVersion: runtime.Version()}

	buildOnce.Do(func() { prometheus.MustRegister(buildInfo) })
	buildMu.Lock()
	currentBuild = b
	buildMu.Unlock()
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Version, b.Commit, b.GoVersion).Set(1)
	return b
}

// CurrentBuild returns what InitBuildInfo last recorded.
func CurrentBuild() Build {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return currentBuild
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
