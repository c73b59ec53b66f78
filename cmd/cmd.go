// Package cmd holds the framecast subcommands. They share the channel
// settings parsed by the root command.
package cmd

import "github.com/smazurov/framecast/pkg/framecast"

// ChannelConfig returns the channel settings resolved by the root command.
// It is only valid once flags, environment and config file are applied.
type ChannelConfig func() framecast.Config
