package types

// Version is the canonical project version.
// CLI and library report the same version (lockstep versioning).
const Version = "0.4.0"
