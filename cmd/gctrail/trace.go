package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gctrail/internal/config"
	"gctrail/internal/console"
	"gctrail/internal/heap"
	"gctrail/internal/prof"
	"gctrail/internal/reach"
	"gctrail/internal/session"
	"gctrail/internal/trace"
)

type traceOptions struct {
	targets     []string
	targetTypes []string
	jobs        int
	dump        int
	dumpFormat  string

	capacity    int
	messageSize int
	missDump    int
	reserve     int

	cpuProfile string
	memProfile string
}

func newTraceCmd() *cobra.Command {
	opts := &traceOptions{}
	cmd := &cobra.Command{
		Use:   "trace [flags] HEAP...",
		Short: "Run a traced collection and print how each target is reached",
		Long: `Load each heap (.toml fixture or packed snapshot), run one traced collection
over it and print the reference chain of every target found. Targets that the
collection never reached are listed at the end of each session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.targets, "target", "t", nil, "object address to search for, e.g. 0x2200 (repeatable)")
	f.StringSliceVar(&opts.targetTypes, "target-type", nil, "search for every object of this type (repeatable)")
	f.IntVarP(&opts.jobs, "jobs", "j", 0, "heaps traced in parallel (0 = GOMAXPROCS)")
	f.IntVar(&opts.dump, "dump", 0, "print the newest N flight recorder entries after each session")
	f.StringVar(&opts.dumpFormat, "dump-format", "text", "flight recorder dump format (text|ndjson)")
	f.IntVar(&opts.capacity, "capacity", 0, "flight recorder entries (overrides [recorder].capacity)")
	f.IntVar(&opts.messageSize, "message-size", 0, "flight recorder message slot size (overrides [recorder].message_size)")
	f.IntVar(&opts.missDump, "miss-dump", 0, "entries dumped when a parent is missing (overrides [recorder].miss_dump)")
	f.IntVar(&opts.reserve, "reserve", 0, "objects to reserve in the index (overrides [index].reserve)")
	f.StringVar(&opts.cpuProfile, "cpu-profile", "", "write a CPU profile of the run to this file")
	f.StringVar(&opts.memProfile, "mem-profile", "", "write a heap profile to this file when the run ends")
	return cmd
}

// applyOverrides copies explicitly set flags over the file configuration.
func (o *traceOptions) applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("capacity") {
		cfg.Recorder.Capacity = o.capacity
	}
	if f.Changed("message-size") {
		cfg.Recorder.MessageSize = o.messageSize
	}
	if f.Changed("miss-dump") {
		cfg.Recorder.MissDump = o.missDump
	}
	if f.Changed("reserve") {
		cfg.Index.Reserve = o.reserve
	}
	return cfg.Validate()
}

func runTrace(cmd *cobra.Command, paths []string, opts *traceOptions) (err error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	profiler, err := prof.Start(prof.Options{CPU: opts.cpuProfile, Mem: opts.memProfile})
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := profiler.Stop(); err == nil {
			err = stopErr
		}
	}()

	if err := opts.applyOverrides(cmd, &s.cfg); err != nil {
		return err
	}
	format, err := trace.ParseFormat(opts.dumpFormat)
	if err != nil {
		return err
	}
	if opts.dump < 0 {
		return fmt.Errorf("--dump must not be negative, got %d", opts.dump)
	}
	targets, err := parseAddrs(opts.targets)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	mode := console.Resolve(s.color, stdout)
	job := traceJob{
		settings: s,
		opts:     opts,
		format:   format,
		targets:  targets,
		mode:     mode,
	}

	jobs := opts.jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// A single heap writes straight through so nothing is lost if the
	// session traps.
	if len(paths) == 1 || jobs == 1 {
		for _, path := range paths {
			if len(paths) > 1 {
				fmt.Fprintf(stdout, "==> %s <==\n", path)
			}
			if err := job.run(cmd.Context(), path, stdout); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return nil
	}

	outputs := make([]bytes.Buffer, len(paths))
	traps := make([]*trace.Abort, len(paths))
	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			// A trap unwinds only this session and leaves the others
			// running; it is raised again once every buffer is printed.
			defer func() {
				if r := recover(); r != nil {
					a, ok := r.(*trace.Abort)
					if !ok {
						panic(r)
					}
					traps[i] = a
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := job.run(gctx, path, &outputs[i]); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	err = g.Wait()

	// Sessions ran concurrently but are printed in argument order, a trapped
	// one included.
	for i, path := range paths {
		if outputs[i].Len() == 0 {
			continue
		}
		fmt.Fprintf(stdout, "==> %s <==\n", path)
		if _, werr := stdout.Write(outputs[i].Bytes()); werr != nil && err == nil {
			err = werr
		}
	}
	for _, a := range traps {
		if a != nil {
			panic(a)
		}
	}
	return err
}

// traceJob holds what every session of one invocation shares.
type traceJob struct {
	settings *settings
	opts     *traceOptions
	format   trace.Format
	targets  []reach.ID
	mode     console.ColorMode
}

func (j traceJob) run(ctx context.Context, path string, w io.Writer) error {
	h, err := heap.Load(path)
	if err != nil {
		return err
	}
	cfg := j.settings.cfg
	out := console.New(w, j.mode)
	log := j.settings.log.With(zap.String("heap", path))

	rec := trace.NewRecorder(cfg.Recorder.Capacity, cfg.Recorder.MessageSize)
	tr := session.New(out, h,
		session.WithRecorder(rec),
		session.WithLogger(log),
		session.WithMissDump(cfg.Recorder.MissDump),
		session.WithReserve(cfg.Index.Reserve))

	for _, id := range j.targets {
		if err := tr.AddTarget(id); err != nil {
			return err
		}
	}
	for _, name := range j.opts.targetTypes {
		ids := h.ObjectsOfType(name)
		if len(ids) == 0 {
			out.Missingf("[gc_addptr] no objects of type %s", name)
		}
		for _, id := range ids {
			if err := tr.AddTarget(id); err != nil {
				return err
			}
		}
	}

	report, err := tr.Run(ctx, heap.NewCollector(h))
	if err != nil {
		return err
	}
	log.Debug("heap traced",
		zap.String("session_id", report.SessionID),
		zap.Int("found", len(report.Found)),
		zap.Int("missing", len(report.Missing)))
	if j.opts.dump > 0 {
		return rec.DumpFormat(out, j.opts.dump, j.format)
	}
	return nil
}

// parseAddrs reads addresses in Go integer literal syntax (0x2200, 8704).
func parseAddrs(values []string) ([]reach.ID, error) {
	ids := make([]reach.ID, 0, len(values))
	for _, v := range values {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --target %q: %w", v, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("invalid --target %q: %w", v, session.ErrNilTarget)
		}
		ids = append(ids, reach.ID(n))
	}
	return ids, nil
}
