package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/smazurov/framecast/pkg/framecast"
	"github.com/spf13/cobra"
)

// CreateInfoCmd creates the info command, which prints channel metadata
// without reading a frame.
func CreateInfoCmd(channel ChannelConfig) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print channel geometry, frame number and client count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := channel()
			client, err := framecast.NewClient(cfg)
			if err != nil {
				return err
			}
			if err := client.Connect(); err != nil {
				return fmt.Errorf("channel %s: %w", cfg.Channel, err)
			}
			info, err := client.FrameInfo()
			// Our own registration is included in the shared count.
			info.ClientCount--
			if derr := client.Disconnect(); err == nil {
				err = derr
			}
			if err != nil {
				return err
			}
			return printInfo(cmd.OutOrStdout(), cfg.Channel, info, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

type channelInfo struct {
	Channel     string `json:"channel"`
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	Format      string `json:"format"`
	Stride      uint32 `json:"stride"`
	Capacity    int    `json:"capacity"`
	FrameNumber uint64 `json:"frame_number"`
	ServerPID   uint32 `json:"server_pid"`
	Clients     int32  `json:"clients"`
}

func printInfo(w io.Writer, channel string, info framecast.FrameInfo, asJSON bool) error {
	ci := channelInfo{
		Channel:     channel,
		Width:       info.Geometry.Width,
		Height:      info.Geometry.Height,
		Format:      info.Geometry.Format.String(),
		Stride:      info.Stride,
		Capacity:    info.Capacity,
		FrameNumber: info.FrameNumber,
		ServerPID:   info.ServerPID,
		Clients:     info.ClientCount,
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ci)
	}
	_, err := fmt.Fprintf(w, "channel:  %s\ngeometry: %dx%d %s (stride %d)\ncapacity: %d bytes\nframe:    %d\nserver:   pid %d\nclients:  %d\n",
		ci.Channel, ci.Width, ci.Height, ci.Format, ci.Stride, ci.Capacity, ci.FrameNumber, ci.ServerPID, ci.Clients)
	return err
}
