// Copyright © 2019 mg
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package main

import (
	"fmt"
	"os"
	"sort"

	"cubesim/pkg/cube"
	"cubesim/pkg/hub"
	"cubesim/pkg/trace"
	"cubesim/pkg/vtime"

	"gopkg.in/urfave/cli.v2"
)

type stderrLogger struct{}

func (stderrLogger) Log(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}

func main() {
	app := &cli.App{
		Name:    "cubesim",
		Usage:   "run a cube's 8051 firmware against the hardware emulator",
		Version: "v0.0.1",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "d",
				Aliases: []string{"debug"},
				Usage:   "enable verbose per-exception debug output",
			},
			&cli.Uint64Flag{
				Name:  "clock",
				Usage: "nominal clock rate in Hz (accepted but not read; timing always uses vtime.NominalHz)",
				Value: vtime.NominalHz,
			},
			&cli.StringFlag{
				Name:  "flash",
				Usage: "path to a flash backing file, loaded before run and saved after",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "write per-PC execution profile to PATH on exit",
			},
			&cli.StringFlag{
				Name:  "trace",
				Usage: "write a cycle-level protocol trace to PATH",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "network hub host (reserved; the hub is in-process only, see DESIGN.md)",
				Value: "localhost",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "network hub port (reserved; see -host)",
				Value: 2401,
			},
			&cli.Uint64Flag{
				Name:  "cycles",
				Usage: "run for N cycles then stop (required; the core never halts itself -- exceptions, including a bad opcode or stack overflow, are only reported via -d/-trace, not a stop condition)",
			},
		},
		ArgsUsage: "FIRMWARE.ihx",
		Action:    run,
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(c *cli.Context) error {
	firmware := c.Args().First()
	if firmware == "" {
		cli.ShowAppHelp(c)
		return cli.Exit("missing firmware argument", -1)
	}

	if c.String("trace") != "" {
		f, err := os.Create(c.String("trace"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("could not open trace file: %v", err), 1)
		}
		defer f.Close()
		trace.SetLogger(fileLogger{f})
		trace.SetEnabled(true)
	}

	if c.Bool("d") {
		trace.SetLogger(stderrLogger{})
		trace.SetEnabled(true)
	}

	h := hub.New()
	hw := cube.New(0, h, c.String("profile") != "")

	if path := c.String("flash"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			hw.LoadFlashImage(data)
		}
	}

	if _, err := hw.CPU.LoadIHX(firmware); err != nil {
		return cli.Exit(fmt.Sprintf("could not load firmware: %v", err), -1)
	}

	budget := c.Uint64("cycles")
	if budget == 0 {
		return cli.Exit("missing -cycles: the core never halts itself, so a run needs an explicit cycle count", -1)
	}
	var ran uint64
	for ran < budget {
		ran += hw.Tick()
	}

	fmt.Printf("ran %d cycles, %d exceptions\n", ran, hw.ExceptionCount())

	if path := c.String("flash"); path != "" {
		if err := os.WriteFile(path, hw.Flash.Bytes(), 0644); err != nil {
			return cli.Exit(fmt.Sprintf("could not save flash image: %v", err), -1)
		}
	}

	if path := c.String("profile"); path != "" {
		if err := writeProfile(path, hw); err != nil {
			return cli.Exit(fmt.Sprintf("could not write profile: %v", err), 1)
		}
	}

	return nil
}

func writeProfile(path string, hw *cube.Hardware) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, entry := range hw.Profiler.Top(32) {
		fmt.Fprintf(f, "%04X: %d cycles, %d loop hits, %d loop cycles\n",
			entry.PC, entry.TotalCycles, entry.LoopHits, entry.LoopCycles)
	}
	return nil
}

type fileLogger struct {
	f *os.File
}

func (l fileLogger) Log(msg string) {
	fmt.Fprintln(l.f, msg)
}
