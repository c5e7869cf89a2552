package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/usecase/query"
)

func queryCmd(opts *rootOpts) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "query <run_id> <jsonpath | name=jsonpath...>",
		Short: "Evaluate JSONPath expressions against a run",
		Long: `Evaluate JSONPath expressions against a run document:

  {"info": {...}, "params": {...}, "metrics": {"<key>": {"value", "step", "timestamp"}}, "tags": {...}}

A single expression prints its value. Several name=expression pairs print a
table of named results; the command fails if any of them has no value.

Examples:
  ttrack query 1a2b3c $.metrics.loss.value
  ttrack query 1a2b3c '$.params["batch size"]'
  ttrack query 1a2b3c loss=$.metrics.loss.value lr=$.params.lr`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, single, err := parseQueryArgs(args[1:])
			if err != nil {
				return err
			}

			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			run, err := resolveRun(ws, args[0])
			if err != nil {
				return err
			}

			if rules == nil {
				return printQueryValue(cmd.OutOrStdout(), run, single, raw)
			}
			return printExtract(cmd.OutOrStdout(), query.Extract(run, rules), raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "json", false, "Print raw JSON (a JSON array of results for name=expression pairs)")
	return cmd
}

// parseQueryArgs returns either one bare expression or a set of named ones.
// Bare expressions start with "$", so "name=$..." is never ambiguous.
func parseQueryArgs(exprs []string) (map[string]string, string, error) {
	if len(exprs) == 1 {
		if _, _, ok := cutRule(exprs[0]); !ok {
			return nil, exprs[0], nil
		}
	}

	rules := make(map[string]string, len(exprs))
	for _, a := range exprs {
		name, expr, ok := cutRule(a)
		if !ok {
			return nil, "", &domain.OpError{
				Op:   "cli.query",
				Kind: domain.KindInvalidArgument,
				Err:  fmt.Errorf("expected name=jsonpath when querying several expressions, got %q", a),
			}
		}
		if _, dup := rules[name]; dup {
			return nil, "", &domain.OpError{
				Op:   "cli.query",
				Kind: domain.KindInvalidArgument,
				Err:  fmt.Errorf("duplicate name %q", name),
			}
		}
		rules[name] = expr
	}
	return rules, "", nil
}

func cutRule(arg string) (name, expr string, ok bool) {
	if strings.HasPrefix(strings.TrimSpace(arg), "$") {
		return "", "", false
	}
	name, expr, ok = strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", false
	}
	return name, expr, true
}

func printQueryValue(w io.Writer, run domain.Run, expr string, raw bool) error {
	val, err := query.Eval(run, expr)
	if err != nil {
		return err
	}
	if raw {
		return writeJSON(w, val)
	}
	s, err := query.ToString(val)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, s)
	return nil
}

type extractJSON struct {
	Name    string `json:"name"`
	Expr    string `json:"expr"`
	Value   string `json:"value,omitempty"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func printExtract(w io.Writer, results []query.Result, raw bool) error {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}

	if raw {
		out := make([]extractJSON, 0, len(results))
		for _, r := range results {
			e := extractJSON{Name: r.Name, Expr: r.Expr, Value: r.Value, OK: r.Success}
			if !r.Success {
				e.Message = r.Message
			}
			out = append(out, e)
		}
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, styleHeader.Render("NAME")+"\t"+styleHeader.Render("VALUE"))
		for _, r := range results {
			if r.Success {
				fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Value)
			} else {
				fmt.Fprintf(tw, "%s\t%s\n", r.Name, styleFailed.Render(r.Message))
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if failed > 0 {
		return &domain.OpError{
			Op:   "cli.query",
			Kind: domain.KindNotFound,
			Err:  fmt.Errorf("%d of %d expressions failed", failed, len(results)),
		}
	}
	return nil
}
