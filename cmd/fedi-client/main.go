package main

import "github.com/alexjbarnes/fedi-client/cmd/fedi-client/cmd"

// Version can be set during build with -ldflags
var Version = "dev"

func main() {
	cmd.SetVersion(Version)
	cmd.Execute()
}
