package qgemm

import (
	"runtime/debug"
)

const modulePath = "github.com/lowbit-labs/qgemm"

// Version returns the module version recorded in the build info. The
// returned string is empty in binaries built without module support or from
// a source checkout.
func Version() string {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	if b.Main.Path == modulePath && b.Main.Version != "" {
		return b.Main.Version
	}
	for _, m := range b.Deps {
		if m.Path == modulePath {
			if m.Replace != nil && m.Replace.Version != "" {
				return m.Replace.Version
			}
			return m.Version
		}
	}
	return ""
}
