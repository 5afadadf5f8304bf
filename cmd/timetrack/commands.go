package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/api"
	"tools.zach/dev/timetrack/internal/logger"
	"tools.zach/dev/timetrack/internal/store"
)

// clientTimeout bounds one CLI round trip, including a queued confirmation.
const clientTimeout = 30 * time.Second

func clientContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, clientTimeout)
}

// ///////////////////////////////////////////////
// status
// ///////////////////////////////////////////////

func statusCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether tracking is on and the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := clientContext(cmd)
			defer cancel()
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw API response")
	return cmd
}

func printStatus(w io.Writer, st api.StatusResponse) {
	state := "off"
	if st.Tracking {
		state = "on"
	}
	fmt.Fprintf(w, "tracking: %s\n", state)
	if st.Current != nil {
		cur := st.Current
		fmt.Fprintf(w, "current:  %s - %q (%s)\n", cur.Application, cur.Title,
			activity.Seconds(cur.Duration).Round(time.Second))
		fmt.Fprintf(w, "session:  %s\n", cur.ID)
		if cur.HasCode() {
			fmt.Fprintf(w, "project:  %s\n", cur.Code())
		}
	}
	if len(st.RecentProjects) > 0 {
		fmt.Fprintf(w, "recent:   %s\n", strings.Join(st.RecentProjects, ", "))
	}
}

// ///////////////////////////////////////////////
// toggle / pause / resume
// ///////////////////////////////////////////////

func toggleCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Flip tracking on or off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := clientContext(cmd)
			defer cancel()
			on, err := c.Toggle(ctx)
			if err != nil {
				return err
			}
			printTracking(cmd.OutOrStdout(), on)
			return nil
		},
	}
}

func setTrackingCmd(g *globalFlags, name string, on bool) *cobra.Command {
	short := "Stop tracking and close the current session"
	if on {
		short = "Start tracking again"
	}
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := clientContext(cmd)
			defer cancel()
			got, err := c.SetTracking(ctx, on)
			if err != nil {
				return err
			}
			printTracking(cmd.OutOrStdout(), got)
			return nil
		},
	}
}

func printTracking(w io.Writer, on bool) {
	if on {
		fmt.Fprintln(w, "tracking on")
	} else {
		fmt.Fprintln(w, "tracking off")
	}
}

// ///////////////////////////////////////////////
// confirm
// ///////////////////////////////////////////////

func confirmCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <session-id> <code>",
		Short: "Apply a project code to a session",
		Long: `Apply a project code to a session, usually in answer to a confirmation
request. The code replaces any inferred one and becomes the most recent project.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := clientContext(cmd)
			defer cancel()
			if err := c.Confirm(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s confirmed\n", args[0])
			return nil
		},
	}
}

// ///////////////////////////////////////////////
// sessions
// ///////////////////////////////////////////////

func sessionsCmd(g *globalFlags) *cobra.Command {
	var (
		from, to, project string
		coded, offline    bool
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions as JSON",
		Long: `List recorded sessions as JSON, ordered by start time.

--from and --to take RFC 3339 times or local dates (YYYY-MM-DD); the range is
half-open. --offline reads the store directly instead of asking the daemon.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			var f activity.Filter
			for _, b := range []struct {
				name, value string
				dst         *time.Time
			}{{"from", from, &f.Range.From}, {"to", to, &f.Range.To}} {
				if b.value == "" {
					continue
				}
				t, err := api.ParseTime(b.value)
				if err != nil {
					return fmt.Errorf("invalid --%s %q: use RFC 3339 or YYYY-MM-DD", b.name, b.value)
				}
				*b.dst = t
				q.Set(b.name, t.Format(time.RFC3339Nano))
			}
			if cmd.Flags().Changed("project") {
				f.Project = &project
				q.Set("project", project)
			}
			if coded {
				f.CodedOnly = true
				q.Set("coded", "true")
			}

			ctx, cancel := clientContext(cmd)
			defer cancel()

			var sessions []activity.Session
			var err error
			if offline {
				sessions, err = queryOffline(ctx, g, f)
			} else {
				var c *apiClient
				if c, err = g.client(); err == nil {
					sessions, err = c.Sessions(ctx, q)
				}
			}
			if err != nil {
				return err
			}
			if sessions == nil {
				sessions = []activity.Session{}
			}
			return writeJSON(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "earliest start time (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "latest start time (exclusive)")
	cmd.Flags().StringVar(&project, "project", "", "only sessions with this project code")
	cmd.Flags().BoolVar(&coded, "coded", false, "only sessions with a project code")
	cmd.Flags().BoolVar(&offline, "offline", false, "read the store directly")
	return cmd
}

// queryOffline opens the configured store without the daemon.
func queryOffline(ctx context.Context, g *globalFlags, f activity.Filter) ([]activity.Session, error) {
	dp, err := g.dirs()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(dp)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.Options{
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		DataDir: dp.Root,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return st.Query(ctx, f)
}

// ///////////////////////////////////////////////
// logs
// ///////////////////////////////////////////////

func logsCmd(g *globalFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dp, err := g.dirs()
			if err != nil {
				return err
			}
			tail, err := logger.ReadTail(dp.Log(), lines)
			if err != nil {
				return err
			}
			if tail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), tail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
