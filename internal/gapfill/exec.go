package gapfill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hularuns/policy-analysis/internal/raster"
)

const DefaultCommand = "gdal_fillnodata.py"

// Runner executes name with args and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecFiller delegates filling to the gdal_fillnodata utility run as a
// separate process. Failures are reported as *raster.ToolError and never
// retried.
type ExecFiller struct {
	Command   string
	Smoothing int
	Run       Runner
	Logger    *slog.Logger
}

func NewExecFiller(command string, smoothing int) *ExecFiller {
	if command == "" {
		command = DefaultCommand
	}
	return &ExecFiller{
		Command:   command,
		Smoothing: smoothing,
		Run:       runCommand,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (f *ExecFiller) FillFile(ctx context.Context, in, out string, maxDistance float64, band int) error {
	if band < 1 {
		return fmt.Errorf("band index starts at 1, got %d", band)
	}
	if _, err := os.Stat(in); err != nil {
		return &raster.ToolError{Tool: f.Command, Input: in, Output: out, Err: err}
	}

	return raster.WriteAtomic(out, func(tmpPath string) error {
		args := []string{"-q", "-md", strconv.FormatFloat(maxDistance, 'f', -1, 64), "-b", strconv.Itoa(band)}
		if f.Smoothing > 0 {
			args = append(args, "-si", strconv.Itoa(f.Smoothing))
		}
		args = append(args, "-of", "GTiff", in, tmpPath)

		f.Logger.Debug("running fill tool", "command", f.Command, "args", strings.Join(args, " "))
		output, err := f.Run(ctx, f.Command, args...)
		if err != nil {
			if msg := strings.TrimSpace(string(output)); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			return &raster.ToolError{Tool: f.Command, Input: in, Output: out, Err: err}
		}
		if _, err := os.Stat(tmpPath); err != nil {
			return &raster.ToolError{Tool: f.Command, Input: in, Output: out, Err: fmt.Errorf("tool produced no output: %w", err)}
		}
		return nil
	})
}
