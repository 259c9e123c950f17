package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"batchcore/internal/core"
	"batchcore/pkg/domain"
)

func newSchemaCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the parameter catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "put <catalog.yaml>",
		Short: "Validate and store a catalog document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(rt *runtime) error {
				doc, err := rt.catalog.Put(cmd.Context(), data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d programs)\n", rt.catalog.Key(), len(doc.Programs))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show [level]",
		Short: "Print the parameters of the program, optionally for one level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *runtime) error {
				levels := args
				if len(levels) == 0 {
					all, err := rt.catalog.Levels(cmd.Context(), rt.program)
					if err != nil {
						return err
					}
					levels = all
				}
				out := make(map[string][]domain.ParameterDefinition, len(levels))
				for _, level := range levels {
					defs, err := rt.catalog.ParametersFor(cmd.Context(), level, rt.program)
					if err != nil {
						return err
					}
					out[level] = defs
				}
				cats, err := rt.catalog.Categories(cmd.Context(), rt.program)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), struct {
					Program    string                                  `json:"program"`
					Levels     map[string][]domain.ParameterDefinition `json:"levels"`
					Categories []domain.CategoryValue                  `json:"categories"`
				}{rt.program, out, cats})
			})
		},
	})
	return cmd
}

func newPivotCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pivot <trees.json|->",
		Short: "Split root batches over the program categories and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, err := readTrees(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(rt *runtime) error {
				preview, err := rt.service.Pivot(cmd.Context(), rt.program, roots)
				if err != nil {
					return err
				}
				for i, r := range preview.Results {
					if len(r.Dropped) > 0 {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d children dropped\n", preview.Roots[i].Label, len(r.Dropped))
					}
				}
				return writeJSON(cmd.OutOrStdout(), preview.Roots)
			})
		},
	}
}

type reconcileOutput struct {
	Level     string                       `json:"level"`
	Matched   []string                     `json:"matched"`
	Created   []string                     `json:"created"`
	Stale     []domain.NodeID              `json:"stale"`
	Ambiguous []domain.AmbiguousMatchError `json:"ambiguous,omitempty"`
}

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <fresh.json> <existing.json>",
		Short: "Match fresh trees against persisted trees, level by level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fresh, err := readTrees(args[0])
			if err != nil {
				return err
			}
			existing, err := readTrees(args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reconcileTrees(fresh, existing))
		},
	}
}

func reconcileTrees(fresh, existing []*domain.Node) []reconcileOutput {
	freshFlat := core.Flatten(fresh...)
	existingFlat := core.Flatten(existing...)
	var out []reconcileOutput
	seen := map[string]bool{}
	for _, n := range freshFlat {
		if seen[n.AcquisitionLevel] {
			continue
		}
		seen[n.AcquisitionLevel] = true
		report := core.Reconcile(core.FilterByLevel(freshFlat, n.AcquisitionLevel), core.FilterByLevel(existingFlat, n.AcquisitionLevel), nil)
		row := reconcileOutput{Level: n.AcquisitionLevel, Ambiguous: report.Ambiguous}
		for _, m := range report.Matched {
			row.Matched = append(row.Matched, fmt.Sprintf("%s=%d", m.Label, m.ID))
		}
		for _, c := range report.Created {
			row.Created = append(row.Created, c.Label)
		}
		for _, s := range report.Stale {
			row.Stale = append(row.Stale, s.ID)
		}
		out = append(out, row)
	}
	return out
}

func newSaveCommand(opts *options) *cobra.Command {
	var pivot bool
	cmd := &cobra.Command{
		Use:   "save <trees.json|->",
		Short: "Persist trees and print them with identifiers assigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, err := readTrees(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(rt *runtime) error {
				res, err := rt.service.Save(cmd.Context(), core.SaveRequest{
					Program: rt.program,
					Roots:   roots,
					Pivot:   pivot,
				})
				if err != nil {
					return err
				}
				for _, key := range res.Archived {
					fmt.Fprintf(cmd.ErrOrStderr(), "archived dropped batch to %s\n", key)
				}
				return writeJSON(cmd.OutOrStdout(), res.Roots)
			})
		},
	}
	cmd.Flags().BoolVar(&pivot, "pivot", false, "Pivot roots over the program categories before saving")
	return cmd
}

func newLoadCommand(opts *options) *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "load [root-id...]",
		Short: "Print stored trees; without ids every root of --level is loaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]domain.NodeID, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", a, err)
				}
				ids = append(ids, domain.NodeID(id))
			}
			if len(ids) == 0 && level == "" {
				return fmt.Errorf("load needs root ids or --level")
			}
			return withRuntime(cmd, opts, func(rt *runtime) error {
				roots, err := rt.service.Load(cmd.Context(), core.LoadRequest{Program: rt.program, Level: level, IDs: ids})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), roots)
			})
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "Acquisition level of the roots")
	return cmd
}
