package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/eventbus"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// NewUIDsCommand creates the uids command group. Changes go through the
// command service so they are journaled like remote commands.
func NewUIDsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uids",
		Short: "Inspect and edit the UID partitions",
	}

	cmd.AddCommand(newUIDsListCommand(rootOpts))
	cmd.AddCommand(newUIDsAddCommand(rootOpts))
	cmd.AddCommand(newUIDsRemoveCommand(rootOpts))
	cmd.AddCommand(newUIDsClearCommand(rootOpts))
	cmd.AddCommand(newUIDsSyncCommand(rootOpts))

	return cmd
}

func newUIDsListCommand(rootOpts *RootOptions) *cobra.Command {
	var partition string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored UIDs with their partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parts := types.Partitions[:]
			if partition != "" {
				p, err := types.ParsePartition(partition)
				if err != nil {
					return err
				}
				parts = []types.Classification{p}
			}

			return withAdmin(cmd, rootOpts, func(ctx context.Context, a *admin) error {
				type row struct {
					part types.Classification
					uid  string
				}
				var rows []row
				err := a.guard.Do(ctx, a.bulk, func(h *guard.Handle) error {
					for _, p := range parts {
						if err := h.ForEach(p, func(uid string) error {
							rows = append(rows, row{part: p, uid: uid})
							return nil
						}); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, r := range rows {
					fmt.Fprintf(out, "%s\t%s\n", r.part, r.uid)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&partition, "partition", "p", "", "only this partition (whitelist|blacklist|pending)")
	return cmd
}

func newUIDsAddCommand(rootOpts *RootOptions) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "add <uid>",
		Short: "Add a UID to the whitelist or blacklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t types.CommandType
			switch strings.ToLower(to) {
			case "whitelist":
				t = types.CmdWhitelistAdd
			case "blacklist":
				t = types.CmdBlacklistAdd
			default:
				return fmt.Errorf("invalid --to %q: must be whitelist or blacklist", to)
			}
			return runCommand(cmd, rootOpts, types.CommandRequest{Type: t, UID: args[0]})
		},
	}

	cmd.Flags().StringVar(&to, "to", "whitelist", "target partition (whitelist|blacklist)")
	return cmd
}

func newUIDsRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <uid>",
		Short: "Remove a UID from every partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, rootOpts, types.CommandRequest{Type: types.CmdRemoveUID, UID: args[0]})
		},
	}
}

func newUIDsClearCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [partition]",
		Short: "Empty one partition, or all of them with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) == 0:
				return runCommand(cmd, rootOpts, types.CommandRequest{Type: types.CmdFactoryReset})
			case !all && len(args) == 1:
				return runCommand(cmd, rootOpts, types.CommandRequest{Type: types.CmdClear, Partition: args[0]})
			default:
				return fmt.Errorf("give exactly one of a partition name or --all")
			}
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "clear every partition (factory reset)")
	return cmd
}

func newUIDsSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <file|->",
		Short: "Replace all partitions from a JSON file",
		Long: `Replace all partitions from a JSON document of the form

  {"whitelist": ["04A1B2C3", ...], "blacklist": [...]}

The pending partition is emptied. "-" reads the document from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var payload types.SyncPayload
			if err := json.NewDecoder(r).Decode(&payload); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			return runCommand(cmd, rootOpts, types.CommandRequest{Type: types.CmdSyncUIDs, Payload: &payload})
		},
	}
}

// runCommand executes req against the local database and prints the result.
func runCommand(cmd *cobra.Command, rootOpts *RootOptions, req types.CommandRequest) error {
	return withAdmin(cmd, rootOpts, func(ctx context.Context, a *admin) error {
		req.ID = uuid.NewString()
		req.Source = "cli"

		resp, err := a.commands.Execute(ctx, req)
		if resp.Result != "" {
			fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
		}
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("command failed: %s", resp.Result)
		}
		return nil
	})
}

// admin is the store access offered to offline commands.
type admin struct {
	guard    *guard.Guard
	commands *service.CommandService
	bulk     time.Duration
}

func withAdmin(cmd *cobra.Command, rootOpts *RootOptions, fn func(ctx context.Context, a *admin) error) error {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := rootOpts.logger(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStores(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Nothing consumes the bus offline; REMOTE_UNLOCK is not offered here.
	bus := eventbus.New(1, logger)
	commands := service.NewCommandService(st.guard, bus, cfg.ModuleID, service.CommandTimeouts{
		Default: cfg.Timing.BulkGuardTimeout,
		Bulk:    cfg.Timing.BulkGuardTimeout,
	}, logger)

	return fn(ctx, &admin{guard: st.guard, commands: commands, bulk: cfg.Timing.BulkGuardTimeout})
}
