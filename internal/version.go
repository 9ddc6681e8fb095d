package internal

// Version is the build version, set at build time with
// -ldflags "-X github.com/vocdoni/maci-coordinator/internal.Version=..."
var Version = "dev"
