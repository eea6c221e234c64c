package commands

import (
	"context"
	"fmt"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/cli/styles"
	"github.com/AshkanYarmoradi/go-adm/cli/ui"
)

// NewGetCommand creates the get command
func NewGetCommand(v *viper.Viper) *cobra.Command {
	var (
		pkAttr string
		full   bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "get <dao> <pk>",
		Short: "Load a model through the gateway and cache",
		Long: `Load one model. Responses are cached with the configured cache, so a
second call is served without a request.

Examples:
  adm get article 42
  adm get article 42 --full --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			daoName, pk := args[0], args[1]
			dao := a.dao(daoName, pkAttr)

			var model adm.Model
			err = runWithSpinner(cmd, fmt.Sprintf("Loading %s %s", daoName, pk), func() (string, error) {
				var err error
				if full {
					model, err = dao.GetFull(ctx, pk, nil)
				} else {
					model, err = dao.Find(ctx, pk)
				}
				if err != nil {
					return "", err
				}
				return "Loaded " + model.CacheKey(), nil
			})
			if adm.IsNotFound(err) {
				return fmt.Errorf("%s %s not found", daoName, pk)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, model.DataHash())
			}
			fmt.Fprintln(out, modelTable(model).Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&pkAttr, "pk", "id", "Primary key attribute")
	cmd.Flags().BoolVar(&full, "full", false, "Load the full model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the model as JSON")

	return cmd
}

func modelTable(m adm.Model) *ui.Table {
	data := m.DataHash()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := ui.NewTable("Attribute", "Value")
	for _, k := range keys {
		table.AddRow(k, display(data[k]))
	}
	return table
}

func display(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case *adm.Object:
		b, err := t.MarshalJSON()
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(adm.Plain(t))
	}
}

// runWithSpinner runs task behind a spinner when writing to the terminal,
// and directly otherwise.
func runWithSpinner(cmd *cobra.Command, message string, task func() (string, error)) error {
	if cmd.OutOrStdout() != os.Stdout {
		_, err := task()
		return err
	}

	final, err := tea.NewProgram(ui.NewSpinner(message, task),
		tea.WithOutput(os.Stderr),
		tea.WithContext(cmd.Context()),
	).Run()
	if err != nil {
		return err
	}
	s, ok := final.(ui.SpinnerModel)
	if !ok {
		return nil
	}
	if s.Err() == nil && s.Result() == "" {
		return context.Canceled
	}
	return s.Err()
}

func printNotice(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.ErrOrStderr(), styles.FormatInfo(msg))
}
