package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or change the stored cursor",
}

var cursorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored cursor",
	Args:  cobra.NoArgs,
	RunE:  cursorShowAction,
}

var cursorSetCmd = &cobra.Command{
	Use:   "set <post-id>",
	Short: "Store a cursor so the next run mirrors only newer posts",
	Args:  cobra.ExactArgs(1),
	RunE:  cursorSetAction,
}

var cursorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the cursor; the next run seeds it again without mirroring",
	Args:  cobra.NoArgs,
	RunE:  cursorResetAction,
}

func init() {
	cursorCmd.AddCommand(cursorShowCmd, cursorSetCmd, cursorResetCmd)
	rootCmd.AddCommand(cursorCmd)
}

func cursorShowAction(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, modeStore)
	if err != nil {
		return err
	}
	defer a.Close()

	id, ok, err := a.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	if !ok {
		fmt.Println("No cursor stored.")
		return nil
	}
	fmt.Println(id)
	return nil
}

func cursorSetAction(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("post id %q must be numeric", id)
		}
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, modeStore)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Set(ctx, id); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	fmt.Printf("Cursor set to %s.\n", id)
	return nil
}

func cursorResetAction(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, modeStore)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cursor: %w", err)
	}
	fmt.Println("Cursor cleared.")
	return nil
}
