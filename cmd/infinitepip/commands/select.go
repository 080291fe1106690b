package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/InfinitePIP/internal/selector"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Drag out a screen region and print it",
	Long: `Grab the pointer and let you drag a rectangle on screen. The result is
printed in the x,y,width,height form accepted by "serve --region".`,
	Example: `  # Print a region
  infinitepip select

  # Print it as JSON
  infinitepip select --format json`,
	RunE: runSelect,
}

var selectFormat string

func init() {
	rootCmd.AddCommand(selectCmd)

	selectCmd.Flags().StringVarP(&selectFormat, "format", "f", "text", "output format (text or json)")
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := selector.Await(ctx, selector.New())
	if err != nil {
		return err
	}
	r := src.Region()

	switch selectFormat {
	case "json":
		encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	case "text":
		fmt.Printf("%d,%d,%d,%d\n", r.X, r.Y, r.Width, r.Height)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'text' or 'json')", selectFormat)
	}
}
