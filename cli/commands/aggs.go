package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/cli/ui"
)

// NewAggsCommand creates the aggs command
func NewAggsCommand() *cobra.Command {
	var (
		sorts     []string
		filters   []string
		hideEmpty bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "aggs <file|->",
		Short: "Normalise and render aggregations",
		Long: `Read a search response (or a bare aggregations object) and render the
aggregation tree built from it.

Examples:
  adm aggs response.json
  curl -s $URL/article/search | adm aggs -
  adm aggs response.json --sort category=Books,Music --filter Books
  adm aggs response.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJSONInput(cmd, args[0])
			if err != nil {
				return err
			}

			factory := adm.NewAggregationsFactory()
			for _, s := range sorts {
				name, priority, err := parseSort(s)
				if err != nil {
					return err
				}
				if err := factory.SetLoader(name, "", factory.SortedBucketsLoader(priority...)); err != nil {
					return err
				}
			}

			aggs := factory.BuildAllFromRawData(aggregationsOf(raw), "")
			if len(filters) > 0 {
				for _, a := range aggs {
					a.CalculateFiltered(filters)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, dataHashes(aggs))
			}

			fmt.Fprintln(out, ui.AggregationTree(aggs, ui.TreeOptions{
				HideEmpty:     hideEmpty,
				FilteredFirst: len(filters) > 0,
			}))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sorts, "sort", nil, "Bucket priority as name=first,second (repeatable)")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "Bucket names to mark as filtered")
	cmd.Flags().BoolVar(&hideEmpty, "hide-empty", false, "Skip buckets with a zero count")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the aggregations as JSON")

	return cmd
}

// readJSONInput decodes the named file, or stdin for "-".
func readJSONInput(cmd *cobra.Command, name string) (any, error) {
	var r io.Reader = cmd.InOrStdin()
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	v, err := adm.ReadJSON(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return v, nil
}

// aggregationsOf returns the "aggregations" member of a search response,
// or raw itself.
func aggregationsOf(raw any) any {
	if o, ok := raw.(*adm.Object); ok && o.Has("aggregations") {
		return o.Value("aggregations")
	}
	return raw
}

func parseSort(s string) (string, []string, error) {
	name, list, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid --sort %q: expected name=first,second", s)
	}
	var priority []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			priority = append(priority, p)
		}
	}
	return name, priority, nil
}

func dataHashes(aggs []adm.AggregationResult) []map[string]any {
	out := make([]map[string]any, len(aggs))
	for i, a := range aggs {
		out[i] = a.DataHash()
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
