package main

// Version is the current version of the globekeys CLI
// Overridden at build time with -ldflags "-X main.Version=x.x.x"
var Version = "dev"

// GitCommit is the git commit hash
var GitCommit = "unknown"

// BuildTime is the build timestamp
var BuildTime = "unknown"
