// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command reftable-dump is a diagnostic CLI over reftable files
// (SPEC_FULL.md §5 "Diagnostic CLI"): it lists refs and reflog entries,
// verifies the CRCs of the blocks read while scanning the ref section, and
// charts the sizes of those blocks.
package main

import (
	"fmt"
	"os"
	"regexp"

	"github.com/ghemawat/stream"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/reftable-go/reftable/blocksource"
	"github.com/reftable-go/reftable/record"
	"github.com/reftable-go/reftable/table"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reftable-dump",
		Short: "Inspect reftable files",
	}
	root.AddCommand(newRefsCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

func openReader(path string) (*table.Reader, error) {
	src, err := blocksource.NewFile(path)
	if err != nil {
		return nil, err
	}
	return table.NewReader(src, table.ReaderOptions{})
}

func newRefsCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "refs <file>",
		Short: "List references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			var cur *table.Cursor
			if prefix != "" {
				cur, err = r.SeekRefsWithPrefix([]byte(prefix))
			} else {
				cur, err = r.AllRefs()
			}
			if err != nil {
				return err
			}

			tw := tablewriter.NewWriter(cmd.OutOrStdout())
			tw.SetHeader([]string{"name", "kind", "update-index", "value"})
			for {
				ref, ok, err := cur.NextRef()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				tw.Append([]string{
					string(ref.Name),
					refKindString(ref.Kind),
					fmt.Sprint(ref.UpdateIndex),
					refValueString(ref),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only list refs with this name prefix")
	return cmd
}

func newLogCmd() *cobra.Command {
	var between []string
	cmd := &cobra.Command{
		Use:   "log <file> <name>",
		Short: "List reflog entries for one reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(between) != 0 && len(between) != 2 {
				return fmt.Errorf("--between takes exactly two patterns, got %d", len(between))
			}

			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			cur, err := r.SeekLog([]byte(args[1]), ^uint64(0))
			if err != nil {
				return err
			}
			var rows [][]string
			for {
				e, ok, err := cur.NextLog()
				if err != nil {
					return err
				}
				if !ok || string(e.Name) != args[1] {
					break
				}
				rows = append(rows, []string{
					fmt.Sprint(e.UpdateIndex),
					fmt.Sprintf("%x", e.Old[:4]),
					fmt.Sprintf("%x", e.New[:4]),
					e.Who.Name,
					e.Message,
				})
			}

			if len(between) == 2 {
				rows, err = filterRowsBetween(rows, between[0], between[1])
				if err != nil {
					return err
				}
			}

			tw := tablewriter.NewWriter(cmd.OutOrStdout())
			tw.SetHeader([]string{"update-index", "old", "new", "who", "message"})
			tw.AppendBulk(rows)
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&between, "between", nil, "only show entries whose message falls between two regexps (start, end)")
	return cmd
}

// filterRowsBetween keeps the rows whose message field (the last column)
// falls between two regexp markers, exclusive of both markers. It is a
// thin adapter around streamFilterBetweenGrep, which does the actual
// windowing over the message stream.
func filterRowsBetween(rows [][]string, start, end string) ([][]string, error) {
	byMessage := make(map[string][]string, len(rows))
	messages := make([]string, len(rows))
	for i, row := range rows {
		messages[i] = row[len(row)-1]
		byMessage[messages[i]] = row
	}

	var kept []string
	collect := stream.FilterFunc(func(arg stream.Arg) error {
		for s := range arg.In {
			kept = append(kept, s)
		}
		return nil
	})
	if err := stream.Run(stream.Items(messages...), streamFilterBetweenGrep(start, end), collect); err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(kept))
	for _, msg := range kept {
		out = append(out, byMessage[msg])
	}
	return out, nil
}

// streamFilterBetweenGrep returns a filter that passes lines strictly
// between the first match of start and the first subsequent match of end.
func streamFilterBetweenGrep(start, end string) stream.Filter {
	startRegexp, err := regexp.Compile(start)
	if err != nil {
		return stream.FilterFunc(func(stream.Arg) error { return err })
	}
	endRegexp, err := regexp.Compile(end)
	if err != nil {
		return stream.FilterFunc(func(stream.Arg) error { return err })
	}
	var passedStart bool
	return stream.FilterFunc(func(arg stream.Arg) error {
		for s := range arg.In {
			if passedStart {
				if endRegexp.MatchString(s) {
					break
				}
				arg.Out <- s
				continue
			} else {
				passedStart = startRegexp.MatchString(s)
			}
		}
		return nil
	})
}

func newVerifyCmd() *cobra.Command {
	var chart bool
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Walk every ref block, checking CRCs, and report size distribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			cur, err := r.AllRefs()
			if err != nil {
				return err
			}
			count := 0
			for {
				_, ok, err := cur.NextRef()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				count++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d refs, %d blocks read, %d cache hits\n",
				count, r.Stats().BlocksRead, r.Stats().CacheHits)

			if chart {
				sizes := r.Stats().BlockSizes
				if len(sizes) > 0 {
					plot := make([]float64, len(sizes))
					for i, s := range sizes {
						plot[i] = float64(s)
					}
					fmt.Fprintln(cmd.OutOrStdout(), asciigraph.Plot(plot))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&chart, "chart", false, "plot the block-size distribution")
	return cmd
}

func refKindString(k record.RefKind) string {
	switch k {
	case record.RefAbsent:
		return "absent"
	case record.RefPacked:
		return "packed"
	case record.RefPeeledTag:
		return "peeled"
	case record.RefSymbolic:
		return "symbolic"
	default:
		return "unknown"
	}
}

func refValueString(r record.Ref) string {
	switch r.Kind {
	case record.RefPacked:
		return fmt.Sprintf("%x", r.Value)
	case record.RefPeeledTag:
		return fmt.Sprintf("%x (peeled %x)", r.Value, r.Peeled)
	case record.RefSymbolic:
		return "-> " + string(r.Target)
	default:
		return ""
	}
}
