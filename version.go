package arbor

import _ "embed"

// Version is the release of the library and the arbor binary.
//
//go:embed VERSION
var Version string
