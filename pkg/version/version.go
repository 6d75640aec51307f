package version

// Version is the bookstore build version, set at build time via ldflags.
// Example: go build -ldflags "-X github.com/shishobooks/bookstore/pkg/version.Version=1.0.0".
var Version = "dev"
