package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bpram/internal/types"
	"github.com/deploymenttheory/go-bpram/pkg/bpram"
)

var (
	lsOffset uint64
	lsBudget uint64
)

var lsCmd = &cobra.Command{
	Use:   "ls <dir-ino>",
	Short: "List a directory's entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ino, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("ls: invalid inode number %q: %w", args[0], err)
		}

		fs, err := bpram.Open(imagePath, false)
		if err != nil {
			return err
		}
		defer fs.Close()

		entries, err := fs.Ops.Readdir(types.InoT(ino), lsOffset, lsBudget)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%-10d %-6s %s\n", e.Ino, fileTypeName(e.FileType), e.Name)
		}
		return nil
	},
}

func fileTypeName(t types.FileType) string {
	switch t {
	case types.FileTypeReg:
		return "file"
	case types.FileTypeDir:
		return "dir"
	case types.FileTypeChr:
		return "chrdev"
	case types.FileTypeBlk:
		return "blkdev"
	case types.FileTypeFifo:
		return "fifo"
	case types.FileTypeSock:
		return "sock"
	case types.FileTypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Uint64Var(&lsOffset, "offset", 0, "starting entry offset")
	lsCmd.Flags().Uint64Var(&lsBudget, "budget", 0, "maximum entries to return (0 = unlimited)")
}
