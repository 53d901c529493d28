// Package version reports the build version of stackrestore.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time, e.g.
//
//	-X github.com/tis24dev/stackrestore/internal/version.Version=v1.0.0
//	-X github.com/tis24dev/stackrestore/internal/version.Commit=abcdef1
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

const placeholder = "0.0.0-dev"

var readBuildInfo = debug.ReadBuildInfo

// String returns the injected version, else the main module version from
// the build info, else a development placeholder. A leading "v" is dropped.
func String() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		if info, ok := readBuildInfo(); ok && info != nil {
			if mv := strings.TrimSpace(info.Main.Version); mv != "" && mv != "(devel)" {
				v = mv
			}
		}
	}
	if v == "" {
		v = placeholder
	}
	return strings.TrimPrefix(v, "v")
}

// Full is the one-line banner printed by "stackrestore version".
func Full() string {
	var b strings.Builder
	b.WriteString("stackrestore ")
	b.WriteString(String())
	if c := strings.TrimSpace(Commit); c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		b.WriteString(" (" + c + ")")
	}
	if d := strings.TrimSpace(Date); d != "" {
		b.WriteString(" built " + d)
	}
	b.WriteString(" " + runtime.Version())
	return b.String()
}
