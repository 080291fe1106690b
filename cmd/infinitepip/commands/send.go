package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/remote"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Ask a running InfinitePIP to open a window PIP",
	Long: `Send a create_window_pip request to the remote trigger of a running
InfinitePIP instance.`,
	Example: `  # Open a PIP of a window by title and last known bounds
  infinitepip send --title "Firefox" --bbox 100,100,1280,720

  # Open a PIP by native handle
  infinitepip send --title "Terminal" --bbox 0,0,800,600 --hwnd 0x3a00007`,
	RunE: runSend,
}

var (
	sendTitle   string
	sendBBox    string
	sendHandle  string
	sendAddress string
	sendTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendTitle, "title", "", "window title")
	sendCmd.Flags().StringVar(&sendBBox, "bbox", "", "window bounds as x,y,width,height")
	sendCmd.Flags().StringVar(&sendHandle, "hwnd", "", "native window handle (decimal or 0x hex)")
	sendCmd.Flags().StringVar(&sendAddress, "address", remote.DefaultAddress, "remote trigger address")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "request timeout")
	sendCmd.MarkFlagRequired("bbox")
}

func parseBBox(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must be x,y,width,height")
	}
	bbox := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid bbox value %q", p)
		}
		bbox[i] = n
	}
	return bbox, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	bbox, err := parseBBox(sendBBox)
	if err != nil {
		return err
	}

	wd := remote.WindowData{Title: sendTitle, BBox: bbox}
	if sendHandle != "" {
		h, err := strconv.ParseUint(sendHandle, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid window handle %q", sendHandle)
		}
		wd.HWND = &h
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	resp, err := remote.Send(ctx, sendAddress, wd)
	if err != nil {
		return err
	}

	fmt.Printf("✅ %s\n", resp.Message)
	return nil
}
