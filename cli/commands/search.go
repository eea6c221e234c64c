package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/cli/styles"
	"github.com/AshkanYarmoradi/go-adm/cli/ui"
)

// NewSearchCommand creates the search command
func NewSearchCommand(v *viper.Viper) *cobra.Command {
	var (
		query     string
		pkAttr    string
		from      int
		size      int
		hideEmpty bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <dao>",
		Short: "Run a search and show hits and aggregations",
		Long: `Post a search to the data layer and render one page of results together
with the aggregation tree.

Examples:
  adm search article
  adm search article --query '{"query":{"match":{"title":"go"}}}' --from 20 --size 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := adm.NewObject()
			if query != "" {
				parsed, err := adm.DecodeJSON([]byte(query))
				if err != nil {
					return fmt.Errorf("invalid --query: %w", err)
				}
				o, ok := parsed.(*adm.Object)
				if !ok {
					return fmt.Errorf("invalid --query: expected a JSON object")
				}
				body = o
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			dao := a.dao(args[0], pkAttr)

			var results *adm.EsCollection
			err = runWithSpinner(cmd, "Searching "+args[0], func() (string, error) {
				var err error
				results, err = dao.Search(ctx, body, from, size)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d hits", results.Total()), nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, results.DataHash())
			}

			if results.Empty() {
				printNotice(cmd, "No results")
			} else {
				table := ui.NewTable("#", "ID", "Score")
				for i, m := range results.Results() {
					id := m.PrimaryKey()
					if id == "" {
						docID, _ := m.Get(ctx, adm.AttrID)
						id = display(docID)
					}
					score, _ := m.Get(ctx, adm.AttrScore)
					table.AddRow(strconv.Itoa(results.From()+i+1), id, display(score))
				}
				fmt.Fprintln(out, table.Render())
			}
			fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("Page %d of %d, %d total",
				results.CurrentPage(), results.TotalPages(), results.Total())))

			if aggs := results.Aggregations(); len(aggs) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, ui.AggregationTree(aggs, ui.TreeOptions{HideEmpty: hideEmpty}))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Search body as a JSON object")
	cmd.Flags().StringVar(&pkAttr, "pk", "id", "Primary key attribute")
	cmd.Flags().IntVar(&from, "from", 0, "Offset of the first hit")
	cmd.Flags().IntVar(&size, "size", adm.DefaultPageSize, "Hits per page")
	cmd.Flags().BoolVar(&hideEmpty, "hide-empty", false, "Skip buckets with a zero count")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the collection as JSON")

	return cmd
}
