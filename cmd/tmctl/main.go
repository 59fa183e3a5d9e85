// Package main implements tmctl, a CLI for the tiermemd REST API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	thttp "github.com/fyrsmithlabs/tiermem/internal/http"
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/services"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliOptions are the persistent flags.
type cliOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:   "tmctl",
		Short: "CLI for tiermemd memory operations",
		Long: `tmctl talks to a running tiermemd daemon over HTTP.
It records memories, queries them, and triggers maintenance for one agent.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", "http://127.0.0.1:9595", "tiermemd server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		newHealthCmd(opts),
		newAgentsCmd(opts),
		newAddCmd(opts),
		newRetrieveCmd(opts),
		newContextCmd(opts),
		newRecordCmd(opts),
		newSummarizeCmd(opts),
		newDecayCmd(opts),
		newDeleteCmd(opts),
	)
	return root
}

func (o *cliOptions) client() *client {
	return newClient(o.server, o.timeout)
}

// print writes v as indented JSON when --json is set, otherwise calls text.
func (o *cliOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func newHealthCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check tiermemd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp thttp.HealthResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				fmt.Fprintf(w, "Server Status: %s\n", resp.Status)
				fmt.Fprintf(w, "Agents:        %d\n", resp.Agents)
				fmt.Fprintf(w, "Tick:          %d (day %d, %02d:00)\n",
					resp.Tick, resp.Tick/memory.TicksPerDay, (resp.Tick%memory.TicksPerDay)/memory.TicksPerHour)
			})
		},
	}
}

func newAgentsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents with memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp thttp.AgentsResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/agents", nil, &resp); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				for _, a := range resp.Agents {
					fmt.Fprintln(w, a)
				}
			})
		},
	}
}

func newAddCmd(opts *cliOptions) *cobra.Command {
	var (
		typ        string
		importance float64
		related    string
	)
	cmd := &cobra.Command{
		Use:   "add <agent> <content>...",
		Short: "Record a memory for an agent",
		Long: `Record a memory in an agent's Active tier.

Examples:
  tmctl add alice "the raid hit the east wall" --type event --importance 0.9
  tmctl add bob traded iron with alice --related alice`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := services.AddRequest{
				Content:      strings.Join(args[1:], " "),
				Type:         typ,
				RelatedAgent: related,
			}
			if cmd.Flags().Changed("importance") {
				req.Importance = &importance
			}
			var e memory.Entry
			if err := opts.client().do(cmd.Context(), http.MethodPost, agentPath(args[0], "/memories"), req, &e); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), e, func(w io.Writer) {
				fmt.Fprintf(w, "Recorded %s (%s, importance %.2f, tags %s)\n",
					e.ID, e.Type, e.Importance, strings.Join(e.Tags, ","))
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "memory type (default observation)")
	cmd.Flags().Float64Var(&importance, "importance", services.DefaultImportance, "importance in [0,1]")
	cmd.Flags().StringVar(&related, "related", "", "other agent involved")
	return cmd
}

func newRetrieveCmd(opts *cliOptions) *cobra.Command {
	var (
		req  thttp.RetrieveRequest
		typ  string
		tier string
	)
	cmd := &cobra.Command{
		Use:   "retrieve <agent> [text]...",
		Short: "Retrieve an agent's most relevant memories",
		Long: `Retrieve memories ranked by keyword relevance, importance and activity.

Examples:
  tmctl retrieve alice raid east wall
  tmctl retrieve alice --layer event_log --max 10
  tmctl retrieve bob --tag trade --context`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Text = strings.Join(args[1:], " ")
			req.Type = memory.Type(typ)
			req.Layer = memory.Layer(tier)
			var resp thttp.EntriesResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, agentPath(args[0], "/retrieve"), req, &resp); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				if resp.Count == 0 {
					fmt.Fprintln(w, "No memories found.")
					return
				}
				for _, e := range resp.Entries {
					fmt.Fprintf(w, "%s  [%s/%s] %.2f  %s\n", e.ID, e.Layer, e.Type, e.Importance, e.Content)
				}
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only this memory type")
	cmd.Flags().StringVar(&tier, "layer", "", "only this tier: active, situational, event_log or archive")
	cmd.Flags().StringVar(&req.RelatedAgent, "related", "", "only memories involving this agent")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "required tag (repeatable)")
	cmd.Flags().BoolVar(&req.IncludeContext, "context", false, "also return recent Event Log entries")
	cmd.Flags().IntVar(&req.MaxCount, "max", 0, "maximum results (default 5)")
	return cmd
}

func newContextCmd(opts *cliOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "context <agent>",
		Short: "Print an agent's memories as prompt-ready lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := agentPath(args[0], "/context")
			if count > 0 {
				path += "?count=" + strconv.Itoa(count)
			}
			var resp thttp.ContextResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				if resp.Context == "" {
					fmt.Fprintln(w, "No memories.")
					return
				}
				fmt.Fprint(w, resp.Context)
				if !strings.HasSuffix(resp.Context, "\n") {
					fmt.Fprintln(w)
				}
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "number of memories (default 5)")
	return cmd
}

func newRecordCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "record <speaker> <listener> <content>...",
		Short: "Record a conversation line for both agents",
		Long: `Record a conversation line in the memories of speaker and listener.
Pass "" as listener for a line spoken to no one in particular.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := thttp.ConversationRequest{
				Speaker:  args[0],
				Listener: args[1],
				Content:  strings.Join(args[2:], " "),
			}
			var resp thttp.ConversationResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/conversations", req, &resp); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				if resp.Recorded {
					fmt.Fprintln(w, "Conversation recorded.")
					return
				}
				fmt.Fprintln(w, "Conversation already recorded this tick.")
			})
		},
	}
}

func newSummarizeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <agent>",
		Short: "Summarize an agent's Situational tier into its Event Log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp thttp.StatsResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, agentPath(args[0], "/summarize"), nil, &resp); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				printStats(w, resp.Stats)
			})
		},
	}
}

func newDecayCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decay <agent>",
		Short: "Run one decay pass for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp thttp.DecayResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, agentPath(args[0], "/decay"), nil, &resp); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				fmt.Fprintf(w, "Evicted %d situational, %d event log\n", resp.Evicted.Situational, resp.Evicted.EventLog)
				printStats(w, resp.Stats)
			})
		},
	}
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent> <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := agentPath(args[0], "/memories/"+args[1])
			if err := opts.client().do(cmd.Context(), http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[1])
			return nil
		},
	}
}

func printStats(w io.Writer, st tiered.Stats) {
	fmt.Fprintf(w, "Active: %d  Situational: %d  Event Log: %d  Archive: %d\n",
		st.Active, st.Situational, st.EventLog, st.Archive)
}
