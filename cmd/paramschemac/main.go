// Command paramschemac is the schema compiler's command-line entry point
// (component A). It reads a schema source file — by default the path named
// by the PARAMETERS_PROTO_PATH environment variable — compiles it, and
// writes a generated Go source file defining the parameter table.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paramstore/paramstore/internal/schema"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		schemaPath string
		outPath    string
		pkgName    string
	)

	cmd := &cobra.Command{
		Use:   "paramschemac",
		Short: "Compile a parameter schema into a generated Go parameter table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaPath == "" {
				schemaPath = os.Getenv("PARAMETERS_PROTO_PATH")
			}
			if schemaPath == "" {
				return fmt.Errorf("paramschemac: no schema path given (use --schema or set PARAMETERS_PROTO_PATH)")
			}

			src, err := os.ReadFile(schemaPath)
			if err != nil {
				return fmt.Errorf("paramschemac: reading %s: %w", schemaPath, err)
			}

			result, err := schema.Compile(context.Background(), schemaPath, string(src))
			if err != nil {
				return fmt.Errorf("paramschemac: %w", err)
			}
			for _, w := range result.Warnings {
				fmt.Fprintln(os.Stderr, "paramschemac: warning:", w)
			}

			out, err := schema.Generate(pkgName, result.Table)
			if err != nil {
				return fmt.Errorf("paramschemac: %w", err)
			}

			if outPath == "" || outPath == "-" {
				_, err = os.Stdout.Write(out)
				return err
			}
			return os.WriteFile(outPath, out, 0o644)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to the schema source (defaults to $PARAMETERS_PROTO_PATH)")
	cmd.Flags().StringVar(&outPath, "out", "-", "output path for the generated Go source (- for stdout)")
	cmd.Flags().StringVar(&pkgName, "package", "paramschema", "package name for the generated source")
	return cmd
}
