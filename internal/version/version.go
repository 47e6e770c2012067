// Package version pins the release version stamped into logs and the
// CLI. Bump it as part of tagging a release.
package version

// Current is the semantic version of this build, without a "v" prefix.
const Current = "0.1.0"
