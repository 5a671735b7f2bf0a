package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postmirror/internal/store"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently mirrored posts",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of deliveries to show")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, _ []string) error {
	if historyFormat != "terminal" && historyFormat != "json" {
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, modeStore)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.journal == nil {
		return fmt.Errorf("storage backend %s keeps no delivery history", a.cfg.Storage.Backend)
	}

	deliveries, err := a.journal.RecentDeliveries(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	if historyFormat == "json" {
		return writeHistoryJSON(os.Stdout, deliveries)
	}
	return writeHistoryTerminal(os.Stdout, deliveries)
}

type historyEntry struct {
	PostID      string    `json:"post_id"`
	Title       string    `json:"title"`
	StatusCode  int       `json:"status_code"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func writeHistoryJSON(w io.Writer, deliveries []store.Delivery) error {
	entries := make([]historyEntry, 0, len(deliveries))
	for _, d := range deliveries {
		entries = append(entries, historyEntry(d))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func writeHistoryTerminal(w io.Writer, deliveries []store.Delivery) error {
	if len(deliveries) == 0 {
		_, err := fmt.Fprintln(w, "No deliveries recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DELIVERED\tPOST\tKIND\tSTATUS")
	for _, d := range deliveries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n",
			d.DeliveredAt.Local().Format("2006-01-02 15:04"), d.PostID, d.Title, d.StatusCode)
	}
	return tw.Flush()
}
