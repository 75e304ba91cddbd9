// Command paramstorectl is an operator CLI: it compiles a schema on the
// fly and opens a short-lived engine against the live database and backup
// files to run a single get/set/save/load/reset/inspect/apply operation,
// then exits. It does not run a multicast notifier process of its own
// beyond what opening the engine requires, so use it for one-shot
// administration rather than as a long-lived participant in the multicast
// bus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paramstore/paramstore/internal/engine"
	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/schema"
)

type globalFlags struct {
	schemaPath string
	dbPath     string
	backupPath string
	dataFolder string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "paramstorectl",
		Short: "Inspect and administer a running parameter store's database",
	}
	root.PersistentFlags().StringVar(&flags.schemaPath, "schema", os.Getenv("PARAMETERS_PROTO_PATH"), "path to the schema source")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "paramstore.db", "path to the live database")
	root.PersistentFlags().StringVar(&flags.backupPath, "backup", "paramstore.backup.db", "path to the backup database")
	root.PersistentFlags().StringVar(&flags.dataFolder, "data", ".", "base directory blob defaults are resolved against")

	root.AddCommand(
		newGetCmd(flags),
		newSetCmd(flags),
		newSaveCmd(flags),
		newLoadCmd(flags),
		newResetCmd(flags),
		newInspectCmd(flags),
		newApplyCmd(flags),
	)
	return root
}

// openEngine compiles the schema and opens a short-lived engine; callers
// must Close it.
func openEngine(ctx context.Context, flags *globalFlags) (*engine.Engine, *paramtable.Table, error) {
	if flags.schemaPath == "" {
		return nil, nil, fmt.Errorf("no schema path given (use --schema or set PARAMETERS_PROTO_PATH)")
	}
	src, err := os.ReadFile(flags.schemaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", flags.schemaPath, err)
	}
	result, err := schema.Compile(ctx, flags.schemaPath, string(src))
	if err != nil {
		return nil, nil, err
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "paramstorectl: warning:", w)
	}
	e, err := engine.New(ctx, engine.Config{
		Table:      result.Table,
		DBPath:     flags.dbPath,
		BackupPath: flags.backupPath,
		DataFolder: flags.dataFolder,
	})
	if err != nil {
		return nil, nil, err
	}
	return e, result.Table, nil
}

func newGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <parameter>",
		Short: "Print a parameter's current value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, tbl, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()

			id, ok := tbl.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown parameter %q", args[0])
			}
			raw, err := e.GetAsJSON(ctx, id, true)
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

func newSetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <parameter> <json-value>",
		Short: "Set a parameter to a JSON-encoded value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, tbl, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()

			id, ok := tbl.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown parameter %q", args[0])
			}
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("%q is not valid JSON", args[1])
			}
			v, err := e.SetFromJSON(ctx, id, json.RawMessage(args[1]))
			if err != nil {
				return err
			}
			fmt.Println(v.String())
			return nil
		},
	}
}

func newSaveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Copy the live database onto the backup path",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, _, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Save(ctx)
		},
	}
}

func newLoadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Restore the live database from the backup path",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, _, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Load(ctx)
		},
	}
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop the live database, resetting every parameter to its default",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, _, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()
			return e.FactoryReset(ctx)
		},
	}
}

func newInspectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List every parameter's descriptor and current value",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, tbl, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()

			type row struct {
				ID       uint32 `json:"id"`
				Name     string `json:"name"`
				Type     string `json:"type"`
				Value    string `json:"value"`
				Const    bool   `json:"is_const"`
				Readonly bool   `json:"readonly"`
				Internal bool   `json:"internal"`
			}
			rows := make([]row, 0, tbl.Len())
			for id := 0; id < tbl.Len(); id++ {
				d := tbl.Descriptor(uint32(id))
				v, err := e.Get(ctx, d.ID, false)
				if err != nil {
					return err
				}
				rows = append(rows, row{
					ID: d.ID, Name: d.NameID, Type: d.ValueType.String(), Value: v.String(),
					Const: d.IsConst, Readonly: d.Readonly, Internal: d.Internal,
				})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
}

// newApplyCmd bulk-applies a YAML file of name-id -> value overrides, the
// way an operator seeds a fresh deployment's non-default parameters
// without scripting one `set` invocation per name. Unknown names are
// reported but do not abort the remaining overrides.
func newApplyCmd(flags *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a YAML file of parameter overrides (name-id: value)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, tbl, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			var overrides map[string]interface{}
			if err := yaml.Unmarshal(raw, &overrides); err != nil {
				return fmt.Errorf("parsing %s: %w", file, err)
			}

			for name, val := range overrides {
				id, ok := tbl.Lookup(name)
				if !ok {
					fmt.Fprintf(os.Stderr, "paramstorectl: apply: unknown parameter %q, skipping\n", name)
					continue
				}
				encoded, err := json.Marshal(val)
				if err != nil {
					return fmt.Errorf("re-encoding value for %s: %w", name, err)
				}
				if _, err := e.SetFromJSON(ctx, id, json.RawMessage(encoded)); err != nil {
					return fmt.Errorf("applying %s: %w", name, err)
				}
				fmt.Printf("applied %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a YAML overrides file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
