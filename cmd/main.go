package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hularuns/policy-analysis/internal/notification"
	"github.com/hularuns/policy-analysis/internal/properties"
)

func printBanner() {
	figure1 := figure.NewFigure("NDVI", "isometric1", true)
	color.Cyan(figure1.String())
	fmt.Println()
}

// flagEnv maps persistent flags onto the environment keys they override.
var flagEnv = map[string]string{
	"root":       "ROOT_PATH",
	"region":     "REGION",
	"sensor":     "SENSOR",
	"years":      "YEARS",
	"target-crs": "TARGET_CRS",
	"roi":        "ROI_PATH",
	"roi-filter": "ROI_FILTER",
	"bbox":       "ROI_BBOX",
	"fill-mode":  "FILL_MODE",
	"workers":    "WORKERS",
}

type app struct {
	cfg     properties.Config
	logger  *slog.Logger
	notify  *notification.Discord
	verbose bool
	banner  bool
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ndvi",
		Short:         "Build yearly NDVI median composites aligned to a region",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("root", "", "root directory of every region (ROOT_PATH)")
	flags.String("region", "", "region name (REGION)")
	flags.String("sensor", "", "SENTINEL2, LANDSAT7 or LANDSAT8 (SENSOR)")
	flags.String("years", "", `years to process, e.g. "2005-2010,2015" (YEARS)`)
	flags.String("target-crs", "", `target coordinate system, or "roi" to use the region's (TARGET_CRS)`)
	flags.String("roi", "", "GeoJSON or OGR file holding the region polygons (ROI_PATH)")
	flags.String("roi-filter", "", "keep only features whose field=value (ROI_FILTER)")
	flags.String("bbox", "", "minx,miny,maxx,maxy in WGS84 when no roi file is given (ROI_BBOX)")
	flags.String("fill-mode", "", "memory, gdal or exec (FILL_MODE)")
	flags.Int("workers", 0, "years processed concurrently (WORKERS)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output")
	flags.BoolVar(&a.banner, "banner", true, "print the banner")

	root.AddCommand(newRunCommand(a), newFetchCommand(a), newManifestCommand())
	return root
}

// setup loads .env, lets changed flags override the environment and reads
// the configuration.
func (a *app) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	for name, key := range flagEnv {
		f := cmd.Flags().Lookup(name)
		if f != nil && f.Changed {
			os.Setenv(key, f.Value.String())
		}
	}

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	if a.banner {
		printBanner()
	}
	if cmd.Name() == "manifest" {
		return nil
	}

	cfg, err := properties.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.notify = notification.NewDiscord(cfg.DiscordErrorURL, cfg.DiscordSuccessURL)
	return nil
}

func main() {
	root := newRootCommand()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			color.Red("PANIC: %v", r)
			msg := fmt.Sprintf("NDVI composite panic:\n\n%v\n\nStack trace:\n%s", r, stack)
			discord := notification.NewDiscord(os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"), "")
			if err := discord.SendError(context.Background(), msg); err != nil {
				color.Red("Failed to send notification: %s", err)
			}
			stop()
			os.Exit(2)
		}
	}()

	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		color.Red("Error: %s", err)
		os.Exit(1)
	}
}
