package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postmirror/internal/render"
)

var previewFormat string

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render pending posts without sending them",
	Long:  "preview fetches posts newer than the cursor and prints the messages the next run would send. Nothing is delivered and the cursor is not touched.",
	RunE:  previewAction,
}

func init() {
	previewCmd.Flags().StringVar(&previewFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(previewCmd)
}

func previewAction(cmd *cobra.Command, _ []string) error {
	if previewFormat != "terminal" && previewFormat != "json" {
		return fmt.Errorf("unknown format %q (want terminal or json)", previewFormat)
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, modePreview)
	if err != nil {
		return err
	}
	defer a.Close()

	msgs, err := a.mirror.Preview(ctx)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	if previewFormat == "json" {
		return writePreviewJSON(os.Stdout, msgs)
	}
	return writePreviewTerminal(os.Stdout, msgs)
}

type previewEntry struct {
	PostID    string `json:"post_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Content   string `json:"content"`
}

func writePreviewJSON(w io.Writer, msgs []render.Message) error {
	entries := make([]previewEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, previewEntry{
			PostID:    m.PostID,
			Username:  m.DisplayName,
			AvatarURL: m.AvatarURL,
			Content:   m.Content(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func writePreviewTerminal(w io.Writer, msgs []render.Message) error {
	if len(msgs) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to mirror.")
		return err
	}
	for i, m := range msgs {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintf(w, "--- %s as @%s\n", m.PostID, m.DisplayName)
		if _, err := fmt.Fprintln(w, m.Content()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%d message(s) pending.\n", len(msgs))
	return err
}
