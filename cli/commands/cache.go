package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AshkanYarmoradi/go-adm/cli/styles"
)

// NewCacheCommand creates the cache command
func NewCacheCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached responses",
	}

	cmd.AddCommand(newCacheExpireCommand(v))

	return cmd
}

func newCacheExpireCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "expire <pattern>",
		Short: "Delete cached responses matching a pattern",
		Long: `Delete every cached response whose key contains pattern. The pattern is
expanded to *<prefix>*<pattern>* and may itself contain * wildcards.

Examples:
  adm cache expire article/42
  adm cache expire 'dao_get/article*'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.service.Expire(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to expire %q: %w", args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess(fmt.Sprintf("Expired %d entries matching %s",
				n, styles.Code.Render(a.service.Pattern(args[0])))))
			return nil
		},
	}
}
