package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gctrail/internal/console"
	"gctrail/internal/heap"
)

func newPackCmd() *cobra.Command {
	var (
		output   string
		allowBad bool
	)
	cmd := &cobra.Command{
		Use:   "pack [flags] FIXTURE.toml",
		Short: "Validate a heap fixture and write it as a packed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			in := args[0]
			out := output
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + ".heap"
			}
			if out == in {
				return fmt.Errorf("refusing to overwrite input %s", in)
			}

			h, err := heap.Load(in)
			if err != nil {
				return err
			}
			if !allowBad {
				if err := h.CheckFieldRefs(); err != nil {
					return fmt.Errorf("%s: %w", in, err)
				}
			}
			if err := heap.Save(out, h.Snapshot()); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			p := console.New(cmd.OutOrStdout(), s.color)
			p.Linef("packed %s -> %s (%s objects, %d roots)", in, out, console.Count(h.Len()), len(h.Roots()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: input with a .heap extension)")
	cmd.Flags().BoolVar(&allowBad, "allow-bad-offsets", false, "pack field references that do not name a pointer field (traps when traced)")
	return cmd
}
