// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "fmt"

// These constants define the application version and follow the semantic
// versioning 2.0.0 spec (https://semver.org/).
const (
	appMajor uint32 = 0
	appMinor uint32 = 3
	appPatch uint32 = 0

	// appPreRelease marks builds that are not tagged releases.
	appPreRelease = "pre"
)

// version returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (https://semver.org/).
func version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, appPreRelease)
	}
	return version
}
