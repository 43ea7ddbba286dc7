package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	pathpkg "path/filepath"

	"github.com/nxadm/tail"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var errNoLogs = errors.New("no log files")

// latestLog returns the newest strcluster-<timestamp>.log in dir.
func latestLog(dir string) (string, error) {
	matches, err := pathpkg.Glob(pathpkg.Join(dir, "strcluster-*.log"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", errNoLogs, dir)
	}
	return lo.Max(matches), nil
}

// showLogs prints the last n lines of path, then keeps printing appended
// lines until ctx is done when follow is set.
func showLogs(ctx context.Context, w io.Writer, path string, n int, follow bool) error {
	t, err := tail.TailFile(path, tail.Config{MustExist: true, Logger: tail.DiscardingLogger})
	if err != nil {
		return err
	}
	var last []string
	for line := range t.Lines {
		if line.Err != nil {
			return line.Err
		}
		last = append(last, line.Text)
		if n > 0 && len(last) > n {
			last = last[1:]
		}
	}
	t.Cleanup()
	for _, l := range last {
		fmt.Fprintln(w, l)
	}
	if !follow {
		return nil
	}

	t, err = tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the newest log file",
	Long: `Show the log of the last interactive session. Interactive runs log to
a file in the data directory since the TUI owns the terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path, err := latestLog(dataDir(cfg))
		if err != nil {
			return err
		}
		follow, _ := cmd.Flags().GetBool("follow")
		n, _ := cmd.Flags().GetInt("tail")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return showLogs(ctx, cmd.OutOrStdout(), path, n, follow)
	},
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow the log")
	logsCmd.Flags().IntP("tail", "t", 100, "Number of lines to show, 0 for all")
	rootCmd.AddCommand(logsCmd)
}
