// Package cmd implements the bpramctl command-line front end: format,
// fsck, stat, and ls, the way cmd/root.go wires go-apfs's verbs onto one
// cobra.Command tree with persistent output flags.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	imagePath    string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "bpramctl",
	Short: "BPRAM filesystem image inspector and formatter",
	Long: `bpramctl drives the byte-persistent-RAM filesystem's persistence
engine directly against an image file, without the POSIX filesystem-bridge
adapter: format a fresh image, re-scan one for consistency, or inspect
inodes and directories.

Commands:
  format    Initialize a fresh BPRAM image
  fsck      Run the online consistency re-scan against a mounted image
  stat      Print an inode's attributes
  ls        List a directory's entries`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&imagePath, "image", "./bpram.img", "path to the BPRAM image file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose flag (no command reads it)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format flag (no command reads it; all output is plain text)")
}
