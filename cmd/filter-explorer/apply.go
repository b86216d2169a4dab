package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"filter-explorer/internal/models"
	"filter-explorer/internal/session"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	labelStyle = color.New(color.FgCyan, color.Bold).SprintFunc()
	okStyle    = color.New(color.FgGreen).SprintFunc()
)

// filterStep is one --filter argument.
type filterStep struct {
	Key    models.FilterKey
	Kernel *models.KernelSize
}

func (s filterStep) String() string {
	if s.Kernel != nil {
		return fmt.Sprintf("%s:%d", s.Key, int(*s.Kernel))
	}
	return string(s.Key)
}

// parseFilterStep parses "key" or "key:kernel". Blur filters without an
// explicit kernel get defaultKernel.
func parseFilterStep(arg string, defaultKernel models.KernelSize) (filterStep, error) {
	name, kernelText, hasKernel := strings.Cut(strings.TrimSpace(arg), ":")

	key, err := models.ParseFilterKey(name)
	if err != nil {
		return filterStep{}, err
	}
	spec, _ := models.LookupFilter(key)

	if !spec.RequiresKernel {
		if hasKernel {
			return filterStep{}, fmt.Errorf("filter %s does not take a kernel size", key)
		}
		return filterStep{Key: key}, nil
	}

	kernel := defaultKernel
	if hasKernel {
		kernel, err = models.ParseKernelSize(kernelText)
		if err != nil {
			return filterStep{}, err
		}
	}
	return filterStep{Key: key, Kernel: kernel.Ptr()}, nil
}

func parseFilterSteps(args []string, defaultKernel models.KernelSize) ([]filterStep, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one --filter is required")
	}
	steps := make([]filterStep, 0, len(args))
	for _, arg := range args {
		step, err := parseFilterStep(arg, defaultKernel)
		if err != nil {
			return nil, fmt.Errorf("invalid --filter %q: %w", arg, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// runChain loads data and applies steps in order, stopping at the first
// failure. The session keeps every step that succeeded.
func runChain(ctx context.Context, machine *session.Machine, data []byte, steps []filterStep) (models.Snapshot, error) {
	snap, err := machine.LoadImage(data)
	if err != nil {
		return snap, fmt.Errorf("load failed: %w", err)
	}

	for i, step := range steps {
		snap, err = machine.ApplyFilter(ctx, step.Key, step.Kernel)
		if err != nil {
			return snap, fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}
	}
	return snap, nil
}

func newApplyCommand(configPath *string) *cobra.Command {
	var (
		input   string
		output  string
		filters []string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a chain of filters without opening a window",
		Example: `  filter-explorer apply -i photo.png -f gaussian_blur:7 -f canny -o edges.png
  filter-explorer apply -i photo.png -f median_blur --service-url http://filters:5000/apply_filter`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd, *configPath)
			if err != nil {
				return err
			}
			defer env.shutdown.Shutdown()
			env.shutdown.Listen(nil)

			steps, err := parseFilterSteps(filters, env.cfg.Kernel.Default)
			if err != nil {
				return err
			}
			if output == "" {
				output = env.cfg.Export.Filename
			}

			ctx := env.shutdown.Context()
			data, err := env.images.ReadFile(ctx, input)
			if err != nil {
				return err
			}

			snap, err := runChain(ctx, env.machine, data, steps)
			if err != nil {
				return err
			}

			result, err := env.machine.Export()
			if err != nil {
				return err
			}
			if err := env.images.WriteFile(ctx, output, result); err != nil {
				return err
			}

			return printChainResult(cmd.OutOrStdout(), snap, output)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "image to filter")
	cmd.Flags().StringVarP(&output, "output", "o", "", "where to write the result (default from export.filename)")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter to apply as key or key:kernel, repeatable")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("filter")

	return cmd
}

func printChainResult(w io.Writer, snap models.Snapshot, output string) error {
	_, err := fmt.Fprintf(w, "%s %s\n%s %s (%d bytes)\n",
		labelStyle("Applied filters:"), snap.HistoryText(),
		okStyle("Wrote"), output, len(snap.Current))
	return err
}
