package common

// Version is set during the build process via ldflags.
var Version = "dev"
