// Package config loads BPRAM mount configuration with Viper, the way
// internal/disk/dmg.go's LoadDMGConfig loads DMG handling options:
// defaults set first, then an optional config file, then environment
// variables, unmarshaled into a typed struct.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Config holds the settings an embedding host needs to open or format a
// BPRAM image.
type Config struct {
	// ImagePath is the backing file mapped as the BPRAM region.
	ImagePath string `mapstructure:"image_path"`

	// FormatBlocks is the block count used by `bpramctl format` when
	// creating a new image; ignored when opening an existing one.
	FormatBlocks uint64 `mapstructure:"format_blocks"`

	// CommitMode selects SP (0) or SCSP (1) publication, spec §6.
	CommitMode uint8 `mapstructure:"commit_mode"`

	// StrictMount refuses to mount when the superblock pair disagrees
	// (spec §9's open question), rather than silently falling back to
	// the secondary copy.
	StrictMount bool `mapstructure:"strict_mount"`
}

// TypedCommitMode converts the unmarshaled commit-mode byte into
// types.CommitMode, validating it names a known mode.
func (c Config) TypedCommitMode() (types.CommitMode, error) {
	switch types.CommitMode(c.CommitMode) {
	case types.CommitModeSP, types.CommitModeSCSP:
		return types.CommitMode(c.CommitMode), nil
	default:
		return 0, fmt.Errorf("config: unknown commit_mode %d", c.CommitMode)
	}
}

// Load reads BPRAM configuration using Viper, following
// internal/disk/dmg.go's LoadDMGConfig search-path and env-prefix
// convention.
func Load() (*Config, error) {
	viper.SetConfigName("bpram-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.bpram")
	viper.AddConfigPath("/etc/bpram")

	viper.SetDefault("image_path", "./bpram.img")
	viper.SetDefault("format_blocks", uint64(2048))
	viper.SetDefault("commit_mode", uint8(types.CommitModeSCSP))
	viper.SetDefault("strict_mount", false)

	viper.SetEnvPrefix("BPRAM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &cfg, nil
}
