// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/poiesic/doajsync"
	"github.com/poiesic/doajsync/config"
	"github.com/poiesic/doajsync/core"
	"github.com/poiesic/doajsync/ingestion"
	"github.com/poiesic/doajsync/logging"
	"github.com/urfave/cli/v2"
)

const stateKey = "doajsync"

// appState is built once in Before and shared with every command.
type appState struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile io.Closer
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "doajsync",
		Usage: "Continuously synchronize DOAJ article metadata into MongoDB",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"DOAJSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Sweep all categories forever until interrupted",
				Action: runCommand,
			},
			{
				Name:   "sweep",
				Usage:  "Sweep all categories once and exit",
				Action: sweepCommand,
			},
			{
				Name:   "checkpoints",
				Usage:  "List the stored cursor of every category",
				Action: checkpointsCommand,
			},
			{
				Name:      "reset",
				Usage:     "Overwrite the cursor of a category",
				ArgsUsage: "<category> <page>",
				Action:    resetCommand,
			},
			{
				Name:      "import-checkpoints",
				Usage:     "Load cursors from a lastFetchedPage.json file",
				ArgsUsage: "<file>",
				Action:    importCommand,
			},
			{
				Name:      "export-checkpoints",
				Usage:     "Write cursors to a lastFetchedPage.json file",
				ArgsUsage: "<file>",
				Action:    exportCommand,
			},
			{
				Name:      "init-config",
				Usage:     "Write the effective configuration as YAML",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: initConfigCommand,
			},
		},
	}
}

// setup loads the configuration and installs the logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if c.IsSet("log-level") {
		level := strings.ToLower(c.String("log-level"))
		if _, err := logging.ParseLevel(level); err != nil {
			return err
		}
		cfg.Logging.Level = level
	}

	logger, logFile, err := logging.Open(c.App.ErrWriter, cfg.Logging.Level, cfg.Logging.Format, logging.Files{
		Combined: cfg.Logging.File,
		Errors:   cfg.Logging.ErrorFile,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata[stateKey] = &appState{cfg: cfg, logger: logger, logFile: logFile}
	return nil
}

func teardown(c *cli.Context) error {
	if state, ok := c.App.Metadata[stateKey].(*appState); ok && state.logFile != nil {
		return state.logFile.Close()
	}
	return nil
}

func stateFrom(c *cli.Context) *appState {
	return c.App.Metadata[stateKey].(*appState)
}

func openService(ctx context.Context, c *cli.Context, opts ...doajsync.ServiceOption) (*doajsync.Service, error) {
	state := stateFrom(c)
	svc, err := doajsync.NewService(ctx, state.cfg, append([]doajsync.ServiceOption{doajsync.WithLogger(state.logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return svc, nil
}

func closeService(svc *doajsync.Service, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		logger.Error("error closing service", "err", err)
	}
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, c)
	if err != nil {
		return err
	}
	defer closeService(svc, stateFrom(c).logger)

	orchestrator, err := svc.NewOrchestrator()
	if err != nil {
		return err
	}
	defer orchestrator.Release()

	err = orchestrator.Run(ctx)
	if errors.Is(err, context.Canceled) {
		stateFrom(c).logger.Info("shutting down")
		return nil
	}
	return err
}

func sweepCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, c)
	if err != nil {
		return err
	}
	defer closeService(svc, stateFrom(c).logger)

	orchestrator, err := svc.NewOrchestrator()
	if err != nil {
		return err
	}
	defer orchestrator.Release()

	writeSweepTable(c.App.Writer, orchestrator.Sweep(ctx))
	return nil
}

func checkpointsCommand(c *cli.Context) error {
	svc, err := openService(c.Context, c, doajsync.WithCheckpointsOnly())
	if err != nil {
		return err
	}
	defer closeService(svc, stateFrom(c).logger)

	stored, err := svc.CheckpointRepository().LoadCursors(c.Context)
	if err != nil {
		return fmt.Errorf("failed to load cursors: %w", err)
	}

	writeCursorTable(c.App.Writer, mergeCursors(svc.Categories(), stored))
	return nil
}

func resetCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("reset requires <category> <page>")
	}
	category := core.Category(c.Args().Get(0))
	page, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid page %q: %w", c.Args().Get(1), err)
	}

	svc, err := openService(c.Context, c, doajsync.WithCheckpointsOnly())
	if err != nil {
		return err
	}
	defer closeService(svc, stateFrom(c).logger)

	cursor, err := svc.CheckpointRepository().Reset(c.Context, category, page)
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "%s: cursor set to page %d, next fetch requests page %d\n", cursor.Category, cursor.Page, cursor.Next())
	return nil
}

func importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("import-checkpoints requires <file>")
	}

	svc, err := openService(c.Context, c, doajsync.WithCheckpointsOnly())
	if err != nil {
		return err
	}
	defer closeService(svc, stateFrom(c).logger)

	count, err := svc.ImportCheckpoints(c.Context, c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to import checkpoints: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Imported %d cursors from %s\n", count, c.Args().First())
	return nil
}

func exportCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("export-checkpoints requires <file>")
	}

	svc, err := openService(c.Context, c, doajsync.WithCheckpointsOnly())
	if err != nil {
		return err
	}
	defer closeService(svc, stateFrom(c).logger)

	count, err := svc.ExportCheckpoints(c.Context, c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to export checkpoints: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Exported %d cursors to %s\n", count, c.Args().First())
	return nil
}

func initConfigCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("init-config requires <file>")
	}
	path := c.Args().First()

	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}

	if err := stateFrom(c).cfg.Save(path); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Wrote configuration to %s\n", path)
	return nil
}

// mergeCursors lists configured categories first, in sweep order, followed by
// any stored categories that are no longer configured.
func mergeCursors(configured []core.Category, stored map[core.Category]core.Cursor) []core.Cursor {
	cursors := make([]core.Cursor, 0, len(configured)+len(stored))
	for _, category := range configured {
		cursor, ok := stored[category]
		if !ok {
			cursor = core.Cursor{Category: category}
		}
		cursors = append(cursors, cursor)
	}

	var extra []core.Cursor
	for category, cursor := range stored {
		if !slices.Contains(configured, category) {
			extra = append(extra, cursor)
		}
	}
	slices.SortFunc(extra, func(a, b core.Cursor) int {
		return strings.Compare(string(a.Category), string(b.Category))
	})
	return append(cursors, extra...)
}

func writeCursorTable(w io.Writer, cursors []core.Cursor) {
	rows := [][]string{{"CATEGORY", "PAGE", "NEXT", "UPDATED"}}
	for _, cursor := range cursors {
		updated := "never"
		if !cursor.UpdatedAt.IsZero() {
			updated = cursor.UpdatedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			string(cursor.Category),
			strconv.Itoa(cursor.Page),
			strconv.Itoa(cursor.Next()),
			updated,
		})
	}
	writeTable(w, rows)
}

func writeSweepTable(w io.Writer, stats ingestion.SweepStats) {
	rows := [][]string{{"CATEGORY", "OUTCOME", "PAGES", "FETCHED", "STORED", "DUPLICATES", "FAILURES"}}
	for _, c := range stats.Categories {
		rows = append(rows, []string{
			string(c.Category),
			c.Outcome.String(),
			strconv.Itoa(c.PagesProcessed),
			strconv.Itoa(c.RecordsFetched),
			strconv.Itoa(c.RecordsStored),
			strconv.Itoa(c.DuplicateConflicts),
			strconv.Itoa(c.PersistFailures + c.FetchFailures),
		})
	}
	writeTable(w, rows)
	fmt.Fprintf(w, "Sweep finished in %s\n", stats.Elapsed.Round(time.Millisecond))
}

// writeTable prints rows in columns aligned by display width, so category
// names in wide scripts line up.
func writeTable(w io.Writer, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	for _, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				line.WriteString(cell)
				break
			}
			line.WriteString(runewidth.FillRight(cell, widths[i]))
			line.WriteString("  ")
		}
		fmt.Fprintln(w, line.String())
	}
}
