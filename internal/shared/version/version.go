package version

// Version is the renderd release string reported by the CLI and stamped on
// outgoing navigations.
const Version = "0.1.0"

// IdentHeader is the reserved request header renderd adds to every
// navigation. Caller-supplied headers never override it.
const IdentHeader = "x-renderd"
