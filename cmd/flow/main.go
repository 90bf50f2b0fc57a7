package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowescrow/internal/app"
	"flowescrow/internal/config"
	"flowescrow/internal/db"
	"flowescrow/internal/domain"
	"flowescrow/internal/escrow"
	"flowescrow/internal/registry"
	"flowescrow/internal/repo"
	"flowescrow/internal/server"
	"flowescrow/internal/token"
)

var rootCmd = &cobra.Command{
	Use:   "flow",
	Short: "Flowescrow CLI",
	Long: `Flowescrow holds client deposits in escrow and releases them per approved
subtask, net of a platform fee. Disputes freeze a task until an admin splits
the remaining funds. Every state change lands in an append-only event log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLOWESCROW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("account", "local-user", "calling account")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("account", rootCmd.PersistentFlags().Lookup("account"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(fundCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(disputeCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(feeCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(mintCmd())
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default flowescrow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Escrow status overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				counts, err := e.Repo.CountTasksByStatus(ctx)
				if err != nil {
					return err
				}
				policy, err := e.FeePolicy(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"task_counts":   counts,
					"fee_bps":       policy.Bps,
					"fee_recipient": policy.Recipient,
				})
			})
		},
	}
	return cmd
}

func fundCmd() *cobra.Command {
	var amount int64
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Fund a new escrow task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				id, err := e.Fund(ctx, viper.GetString("account"), amount)
				if err != nil {
					return err
				}
				t, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "deposit in the smallest asset unit")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskPaymentCmd())
	return task
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				t, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, client string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
					Client: client,
					Status: status,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Total", "Released", "Status"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Client, t.TotalAmount, t.ReleasedAmount, t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&client, "client", "", "filter by funding client")
	cmd.Flags().IntVar(&limit, "limit", 50, "max tasks")
	return cmd
}

func taskPaymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment <task-id> <subtask-index>",
		Short: "Show one subtask payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid subtask index %q", args[1])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				p, err := e.GetSubtaskPayment(ctx, id, index)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func approveCmd() *cobra.Command {
	var index, amount int64
	var worker string
	cmd := &cobra.Command{
		Use:   "approve <task-id>",
		Short: "Approve a subtask and release payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				if err := e.ApproveSubtask(ctx, viper.GetString("account"), id, index, worker, amount); err != nil {
					return err
				}
				p, err := e.GetSubtaskPayment(ctx, id, index)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&index, "index", 0, "subtask index")
	cmd.Flags().StringVar(&worker, "worker", "", "worker account")
	cmd.Flags().Int64Var(&amount, "amount", 0, "gross release amount")
	_ = cmd.MarkFlagRequired("worker")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a task and refund the remainder",
		Args:  cobra.ExactArgs(1),
		RunE: taskTransitionRunE(func(ctx context.Context, e *escrow.Engine, caller string, id int64) error {
			return e.CompleteTask(ctx, caller, id)
		}),
	}
	return cmd
}

func cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel an untouched task and refund the full escrow",
		Args:  cobra.ExactArgs(1),
		RunE: taskTransitionRunE(func(ctx context.Context, e *escrow.Engine, caller string, id int64) error {
			return e.CancelTask(ctx, caller, id)
		}),
	}
	return cmd
}

func disputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispute <task-id>",
		Short: "Raise a dispute, freezing the task",
		Args:  cobra.ExactArgs(1),
		RunE: taskTransitionRunE(func(ctx context.Context, e *escrow.Engine, caller string, id int64) error {
			return e.RaiseDispute(ctx, caller, id)
		}),
	}
	return cmd
}

func taskTransitionRunE(op func(context.Context, *escrow.Engine, string, int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
			if err := op(ctx, e, viper.GetString("account"), id); err != nil {
				return err
			}
			t, err := e.GetTask(ctx, id)
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		})
	}
}

func resolveCmd() *cobra.Command {
	var winner string
	var amount int64
	cmd := &cobra.Command{
		Use:   "resolve <task-id>",
		Short: "Resolve a dispute (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				if err := e.ResolveDispute(ctx, viper.GetString("account"), id, winner, amount); err != nil {
					return err
				}
				t, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&winner, "winner", "", "account awarded the winner share")
	cmd.Flags().Int64Var(&amount, "amount", 0, "winner share of the remaining escrow")
	_ = cmd.MarkFlagRequired("winner")
	return cmd
}

func feeCmd() *cobra.Command {
	fee := &cobra.Command{Use: "fee", Short: "Platform fee policy"}
	fee.AddCommand(feeShowCmd())
	fee.AddCommand(feeSetCmd())
	fee.AddCommand(feeRecipientCmd())
	return fee
}

func feeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show fee policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				p, err := e.FeePolicy(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func feeSetCmd() *cobra.Command {
	var bps int64
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set fee basis points (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				if err := e.SetFee(ctx, viper.GetString("account"), bps); err != nil {
					return err
				}
				p, err := e.FeePolicy(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&bps, "bps", 0, "fee in basis points (10000 = 100%)")
	_ = cmd.MarkFlagRequired("bps")
	return cmd
}

func feeRecipientCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "recipient",
		Short: "Set fee recipient (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				if err := e.SetFeeRecipient(ctx, viper.GetString("account"), recipient); err != nil {
					return err
				}
				p, err := e.FeePolicy(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "to", "", "account receiving collected fees")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Admin set management"}
	admin.AddCommand(adminListCmd())
	admin.AddCommand(adminGrantCmd())
	admin.AddCommand(adminRevokeCmd())
	return admin
}

func adminListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List admins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				items, err := e.Repo.ListAdmins(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Account", "Granted By", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.Account, a.GrantedBy, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func adminGrantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant <account>",
		Short: "Grant admin (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				return e.GrantAdmin(ctx, viper.GetString("account"), args[0])
			})
		},
	}
	return cmd
}

func adminRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <account>",
		Short: "Revoke admin (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				return e.RevokeAdmin(ctx, viper.GetString("account"), args[0])
			})
		},
	}
	return cmd
}

func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [account]",
		Short: "Show an account balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account := viper.GetString("account")
			if len(args) == 1 {
				account = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				ledger := token.Ledger{DB: e.DB}
				balance, err := ledger.Balance(ctx, account)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"account": account, "balance": balance})
			})
		},
	}
	return cmd
}

func mintCmd() *cobra.Command {
	var amount int64
	cmd := &cobra.Command{
		Use:   "mint <account>",
		Short: "Credit an account out of thin air (dev only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				ledger := token.Ledger{DB: e.DB}
				if err := ledger.Mint(ctx, args[0], amount); err != nil {
					return err
				}
				balance, err := ledger.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"account": args[0], "balance": balance})
			})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to credit")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func artifactCmd() *cobra.Command {
	art := &cobra.Command{Use: "artifact", Short: "Provenance registry"}
	art.AddCommand(artifactRegisterCmd())
	art.AddCommand(artifactShowCmd())
	return art
}

func artifactRegisterCmd() *cobra.Command {
	var id, hash string
	var contributors []string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				reg := registry.New(e.DB)
				a, err := reg.Register(ctx, viper.GetString("account"), id, hash, contributors)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "artifact id (generated when empty)")
	cmd.Flags().StringVar(&hash, "hash", "", "content hash")
	cmd.Flags().StringSliceVar(&contributors, "contributor", nil, "contributor account (repeatable)")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}

func artifactShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <artifact-id>",
		Short: "Show one artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				a, err := registry.New(e.DB).Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	var taskID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, evtType, taskID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Task", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.TaskID, evt.Actor})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id filter")
	return cmd
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "API key management"}
	keys.AddCommand(keysCreateCmd())
	keys.AddCommand(keysDeleteCmd())
	return keys
}

func keysCreateCmd() *cobra.Command {
	var account, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				account = viper.GetString("account")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					Account:   account,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The secret is shown once and never stored in the clear.
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"account": key.Account,
					"secret":  secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&account, "for", "", "account the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keysDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *escrow.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			eng, err := app.Bootstrap(cmd.Context(), conn, cfg)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:               cfg.Server.JWTSecret,
				AllowLegacyCallerHeader: cfg.Server.AllowLegacyCallerHeader,
				DevAuth:                 cfg.Server.DevAuth,
			}
			if secret := os.Getenv("FLOWESCROW_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyCallerHeader {
				return fmt.Errorf("FLOWESCROW_JWT_SECRET (or server.jwt_secret) is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   eng,
				Registry: registry.New(conn),
				Ledger:   token.Ledger{DB: conn},
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(eng.Repo, cfg.Webhooks)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Flowescrow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *escrow.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := app.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	eng, err := app.Bootstrap(ctx, conn, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, eng)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
