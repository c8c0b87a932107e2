package engine

import (
	"context"
	"fmt"
	"regexp"

	"github.com/blang/semver/v4"
	"github.com/jmoiron/sqlx"
)

// Instrumentation columns appeared in these server releases.
var (
	cpuTimeSince = semver.MustParse("8.0.28")
	memorySince  = semver.MustParse("8.0.31")
)

var versionPrefix = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// Capabilities records which statement-history columns the server exposes.
type Capabilities struct {
	Version semver.Version
	CPUTime bool
	Memory  bool
}

// ParseVersion reads the numeric prefix of a server version string such as
// "8.0.36" or "5.7.44-log".
func ParseVersion(s string) (semver.Version, error) {
	prefix := versionPrefix.FindString(s)
	if prefix == "" {
		return semver.Version{}, fmt.Errorf("unrecognised server version %q", s)
	}
	return semver.ParseTolerant(prefix)
}

func CapabilitiesFor(v semver.Version) Capabilities {
	return Capabilities{
		Version: v,
		CPUTime: v.GTE(cpuTimeSince),
		Memory:  v.GTE(memorySince),
	}
}

// DetectCapabilities asks the server for its version.
func DetectCapabilities(ctx context.Context, db *sqlx.DB) (Capabilities, error) {
	var raw string
	if err := db.GetContext(ctx, &raw, collectorTag+" SELECT VERSION()"); err != nil {
		return Capabilities{}, fmt.Errorf("reading server version: %w", err)
	}
	v, err := ParseVersion(raw)
	if err != nil {
		return Capabilities{}, err
	}
	return CapabilitiesFor(v), nil
}
