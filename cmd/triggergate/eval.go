package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"triggergate/pkg/engine"
	"triggergate/pkg/ingest"
	"triggergate/pkg/menu"
	"triggergate/pkg/model"
)

// evalSummary counts eval outcomes.
type evalSummary struct {
	Read, Accepted, Dropped, Failed int
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	var menusPath string

	cmd := &cobra.Command{
		Use:   "eval [events.ndjson]",
		Short: "Run the trigger filter over newline-delimited events",
		Long: `Run the trigger filter over newline-delimited JSON events read from a file
or stdin and print the accepted ones with their triggersFired bitmask.

Events that carry only a menu_version need --menus, a YAML map from menu
version to trigger names.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			store := menu.NewMemoryStore()
			if menusPath != "" {
				if err := loadMenus(menusPath, store); err != nil {
					return err
				}
			}

			sum, err := runEval(cmd.Context(), rootOpts, store, in, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "read %d, accepted %d, dropped %d, failed %d\n", sum.Read, sum.Accepted, sum.Dropped, sum.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&menusPath, "menus", "", "YAML file mapping menu versions to trigger names")
	return cmd
}

func loadMenus(path string, store *menu.MemoryStore) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read menus: %w", err)
	}
	var menus map[string][]string
	if err := yaml.Unmarshal(b, &menus); err != nil {
		return fmt.Errorf("parse menus: %w", err)
	}
	for version, names := range menus {
		store.Put(version, names)
	}
	return nil
}

func runEval(ctx context.Context, opts *RootOptions, store menu.Store, in io.Reader, out io.Writer) (evalSummary, error) {
	var sum evalSummary
	chain := engine.NewProcessorChain(engine.NewTriggerFilter(engine.TriggerFilterConfig{
		Results:  opts.Config.Filter.TriggerResults,
		Registry: opts.registry(),
		Menus:    store,
		Logger:   opts.Logger,
	}))
	pCtx := &engine.ProcessingContext{Context: ctx, Logger: opts.Logger}

	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), ingest.MaxLineSize)
	ev := model.NewEvent()
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		sum.Read++

		ev.Reset()
		if err := model.Decode(bytes.Clone(line), ev); err != nil {
			sum.Failed++
			opts.Logger.Warn("skipping event", "line", sum.Read, "error", err)
			continue
		}
		drop, err := chain.Process(pCtx, ev)
		switch {
		case err != nil:
			sum.Failed++
			opts.Logger.Warn("skipping event", "event", ev.ID, "error", err)
			continue
		case drop:
			sum.Dropped++
			continue
		}

		encoded, err := model.Encode(ev)
		if err != nil {
			return sum, err
		}
		sum.Accepted++
		if _, err := w.Write(append(encoded, '\n')); err != nil {
			return sum, fmt.Errorf("write event %s: %w", ev.ID, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return sum, err
	}
	return sum, w.Flush()
}
