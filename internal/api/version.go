package api

// Version information, set at build time via ldflags.
var (
	EngineVersion = "dev"
	GitCommit     = "unknown"
	BuildTime     = "unknown"
)
