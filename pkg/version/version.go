package version

// Version is the current git version of the code. It is filled in by "make build".
var Version = "dev"
