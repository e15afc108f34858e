package main

// BuildVersion is set through ldflags on release builds.
var BuildVersion = "0.1.0"
