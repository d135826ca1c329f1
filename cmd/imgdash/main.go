// Command imgdash serves the image dashboard for a directory of projects.
package main

import "os"

func main() {
	os.Exit(runServer(os.Args[1:], os.Stdout, os.Stderr))
}
