// Command bpramctl drives the BPRAM persistence engine directly against
// an image file: format, fsck, stat, ls.
package main

import "github.com/deploymenttheory/go-bpram/cmd"

func main() {
	cmd.Execute()
}
