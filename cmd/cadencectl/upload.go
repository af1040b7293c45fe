package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cadencefm/cadence/internal/sdk"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var params sdk.UploadParams

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an audio file, resuming an earlier attempt when possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			cmd.SilenceUsage = true

			params.FilePath = args[0]
			params.StateDir, _ = cmd.Flags().GetString("state-dir")
			params.Callback = newProgressPrinter(cmd.ErrOrStderr())

			start := time.Now()
			obj, err := client.Uploads.Upload(cmd.Context(), &params)
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s in %s\n", green("uploaded"), obj.Name, time.Since(start).Round(time.Millisecond))
			printObject(out, obj)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.FileName, "name", "", "Object name, defaults to the file name")
	cmd.Flags().StringVar(&params.ContentType, "content-type", "", "Content type, detected from the extension when empty")
	cmd.Flags().Float64Var(&params.DurationSeconds, "duration", 0, "Track duration in seconds, used for HLS playlists")
	cmd.Flags().IntVarP(&params.Concurrency, "parallel", "p", 4, "Chunks uploaded in parallel")
	cmd.Flags().DurationVar(&params.ChunkTimeout, "chunk-timeout", 2*time.Minute, "Timeout for a single chunk request")
	return cmd
}

// newProgressPrinter redraws one progress line, at most every 200ms
func newProgressPrinter(w io.Writer) sdk.ProgressFunc {
	var mu sync.Mutex
	var last time.Time

	return func(uploaded, total int64) {
		mu.Lock()
		defer mu.Unlock()

		if uploaded < total && time.Since(last) < 200*time.Millisecond {
			return
		}
		last = time.Now()

		pct := float64(uploaded) / float64(max(total, 1)) * 100
		fmt.Fprintf(w, "\r%s %s / %s (%.1f%%)", cyan("uploading"),
			humanize.IBytes(uint64(uploaded)), humanize.IBytes(uint64(total)), pct)
	}
}

func printObject(w io.Writer, obj *sdk.StoredObject) {
	fmt.Fprintf(w, "  %-10s %s\n", "id", cyan(obj.ID))
	fmt.Fprintf(w, "  %-10s %s\n", "name", obj.Name)
	fmt.Fprintf(w, "  %-10s %s\n", "type", obj.ContentType)
	fmt.Fprintf(w, "  %-10s %s\n", "size", humanize.IBytes(uint64(obj.Size)))
	fmt.Fprintf(w, "  %-10s %s\n", "sha256", obj.Hash)
	fmt.Fprintf(w, "  %-10s %s (x%d)\n", "tier", obj.Tier, obj.Replication)
	if obj.DurationSeconds > 0 {
		fmt.Fprintf(w, "  %-10s %s\n", "duration", (time.Duration(obj.DurationSeconds * float64(time.Second))).Round(time.Second))
	}
}
