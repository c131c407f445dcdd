package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bpram/internal/types"
	"github.com/deploymenttheory/go-bpram/pkg/bpram"
)

var (
	formatBlocks uint64
	formatSCSP   bool
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Initialize a fresh BPRAM image",
	Long: `Initialize a fresh BPRAM image at --image with --blocks blocks,
writing the superblock pair and a root directory inode (spec §1's mkfs
Non-goal excludes the external utility, not this write path).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := types.CommitModeSP
		if formatSCSP {
			mode = types.CommitModeSCSP
		}
		fs, err := bpram.Format(imagePath, formatBlocks, mode)
		if err != nil {
			return err
		}
		defer fs.Close()
		fmt.Printf("formatted %s: %d blocks, commit mode %s, root inode %d\n", imagePath, formatBlocks, mode, types.RootIno)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
	formatCmd.Flags().Uint64Var(&formatBlocks, "blocks", 2048, "total block count for the new image")
	formatCmd.Flags().BoolVar(&formatSCSP, "scsp", true, "use short-circuit shadow paging commit mode (false selects plain shadow paging)")
}
