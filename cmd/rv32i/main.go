// Package main provides the command-line entry point for the RV32I
// functional simulator.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr/funcr"

	"rv32i/config"
	"rv32i/emu"
	"rv32i/loader"
)

var (
	elfPath    = flag.String("elf", "", "path to an ELF binary to load")
	istatePath = flag.String("istate", "", "path to a combined model snapshot to resume from")
	imemPath   = flag.String("imem", "", "path to a standalone memory snapshot (requires -iregs and -pc)")
	iregsPath  = flag.String("iregs", "", "path to a standalone register snapshot (requires -imem and -pc)")
	pcFlag     = flag.Uint("pc", 0, "starting program counter (with -imem/-iregs)")

	ostatePath = flag.String("ostate", "", "write the final combined model snapshot here")
	oregsPath  = flag.String("oregs", "", "write the final register snapshot here")
	omemPath   = flag.String("omem", "", "write the final memory snapshot here")

	configPath     = flag.String("config", "", "path to a TOML run configuration")
	logLevel       = flag.Int("logs", -1, "log verbosity: 0 silent, 1 lifecycle, 2 per-step (overrides -config)")
	checkpointsDir = flag.String("checkpoints", "", "directory to dump a per-step snapshot into")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rv32i: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: rv32i [options]")
	fmt.Fprintln(os.Stderr, "\nExactly one of -elf, -istate, or (-imem and -iregs and -pc) selects the starting state.")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
}

func run() error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	log := logr.Discard()
	if cfg.LogLevel > 0 {
		log = funcr.New(func(prefix, args string) {
			if prefix != "" {
				fmt.Fprintf(os.Stderr, "%s %s\n", prefix, args)
			} else {
				fmt.Fprintln(os.Stderr, args)
			}
		}, funcr.Options{Verbosity: cfg.LogLevel - 1})
	}

	opts := []emu.Option{emu.WithLogger(log)}

	if cfg.Checkpoints && *checkpointsDir != "" {
		if err := os.MkdirAll(*checkpointsDir, 0o750); err != nil {
			return fmt.Errorf("creating checkpoint directory: %w", err)
		}
		opts = append(opts, emu.WithOnStep(dumpCheckpoint(*checkpointsDir)))
	}

	e, err := loadStartingState(cfg, opts)
	if err != nil {
		return fmt.Errorf("loading starting state: %w", err)
	}

	exitCode, runErr := e.Run()

	// A run-time memory/alignment failure invalidates the model but the
	// snapshot is still dumped on request to aid post-mortem, so the
	// outputs are written before runErr is reported.
	if err := writeOutputs(e); err != nil {
		return fmt.Errorf("writing output snapshots: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("running program: %w", runErr)
	}

	if exitCode != 0 {
		os.Exit(int(exitCode))
	}
	return nil
}

func resolveConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg = config.DefaultConfig()
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyLogLevel(*logLevel)
	if *checkpointsDir != "" {
		cfg.Checkpoints = true
	}
	return cfg, nil
}

func loadStartingState(cfg *config.Config, opts []emu.Option) (*emu.Emulator, error) {
	switch {
	case *elfPath != "":
		prog, err := loader.Load(*elfPath)
		if err != nil {
			return nil, err
		}
		return emu.NewFromELF(prog, cfg.DefaultStackSize, opts...)

	case *istatePath != "":
		f, err := os.Open(*istatePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return emu.NewFromBstate(f, opts...)

	case *imemPath != "" && *iregsPath != "":
		memF, err := os.Open(*imemPath)
		if err != nil {
			return nil, err
		}
		defer memF.Close()
		regsF, err := os.Open(*iregsPath)
		if err != nil {
			return nil, err
		}
		defer regsF.Close()
		return emu.NewFromParts(regsF, memF, uint32(*pcFlag), opts...)

	default:
		return nil, fmt.Errorf("exactly one of -elf, -istate, or (-imem and -iregs) must be given")
	}
}

func writeOutputs(e *emu.Emulator) error {
	writers := []struct {
		path string
		dump func(io.Writer) error
	}{
		{*ostatePath, e.BinaryDump},
		{*oregsPath, e.DumpRegs},
		{*omemPath, e.DumpMemory},
	}
	for _, w := range writers {
		if w.path == "" {
			continue
		}
		f, err := os.Create(w.path)
		if err != nil {
			return err
		}
		err = w.dump(f)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

// dumpCheckpoint returns an onStep callback that writes one model snapshot
// per executed step into dir, named by the step number.
func dumpCheckpoint(dir string) func(e *emu.Emulator, step uint64) error {
	return func(e *emu.Emulator, step uint64) error {
		path := filepath.Join(dir, fmt.Sprintf("step-%06d.bstate", step))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return e.BinaryDump(f)
	}
}
