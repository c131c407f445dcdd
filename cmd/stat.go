package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bpram/internal/types"
	"github.com/deploymenttheory/go-bpram/pkg/bpram"
)

var statCmd = &cobra.Command{
	Use:   "stat <ino>",
	Short: "Print an inode's attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ino, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("stat: invalid inode number %q: %w", args[0], err)
		}

		fs, err := bpram.Open(imagePath, false)
		if err != nil {
			return err
		}
		defer fs.Close()

		attr, err := fs.Ops.Stat(types.InoT(ino))
		if err != nil {
			return err
		}
		fmt.Printf("ino:        %d\n", attr.Ino)
		fmt.Printf("mode:       %#o\n", attr.Mode)
		fmt.Printf("nlinks:     %d\n", attr.NLinks)
		fmt.Printf("uid/gid:    %d/%d\n", attr.UID, attr.GID)
		fmt.Printf("size:       %d\n", attr.Size)
		fmt.Printf("generation: %d\n", attr.Generation)
		fmt.Printf("atime:      %d\n", attr.ATime)
		fmt.Printf("mtime:      %d\n", attr.MTime)
		fmt.Printf("ctime:      %d\n", attr.CTime)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
