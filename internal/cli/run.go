package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postmirror/internal/mirror"
	"github.com/ppiankov/postmirror/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mirror new posts once and exit",
	Long:  "run performs a single mirror pass. It exits non-zero when the pass fails, so it can be driven by cron or a scheduled job.",
	RunE:  runAction,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := newApp(ctx, modeMirror)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runOnce(ctx)
	if err != nil {
		return telemetry.Fail(a.log, a.reporter, err, "Mirror run failed")
	}

	switch res.State {
	case mirror.StateEmpty:
		fmt.Println("No new posts.")
	case mirror.StateSeeded:
		fmt.Printf("Seeded cursor at %s (%d existing posts not mirrored).\n", res.Cursor, res.Fetched)
	default:
		fmt.Printf("Mirrored %d of %d posts, cursor at %s.\n", res.Dispatched, res.Fetched, res.Cursor)
	}
	return nil
}
