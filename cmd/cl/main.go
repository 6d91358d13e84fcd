package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseline/internal/app"
	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/server"
	"caseline/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Caseline CLI",
	Long: `Caseline tracks the actionable work of a bankruptcy intake matter.
Core concepts:
- Workspace: your .caseline directory with the snapshot database; one scope per client matter.
- Actionable: one unit of work (task, question, doc_request, conflict, thread, appointment), each kind with its own status graph.
- Responsible: who must act next; recomputed from kind and status on every transition.
- Roles: attorney, staff, client, system; roles gate which target statuses an actor may reach.
- Resolution: terminal statuses always carry an outcome, a reason code, and sometimes a required note.
- Audit: every mutation appends an immutable event on the entity and on the workspace mirror.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(ws); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("CASELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", "", "actor role (attorney, staff, client); defaults from the config directory")
	rootCmd.PersistentFlags().String("scope", "", "scope id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("scope", rootCmd.PersistentFlags().Lookup("scope"))
}

func registerCommands() {
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(transitionCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(dueCmd())
	rootCmd.AddCommand(deriveCmd())
	rootCmd.AddCommand(statusesCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(legacyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorRole(cfg *config.Config) domain.Role {
	if r := viper.GetString("role"); r != "" {
		return domain.Role(r)
	}
	return cfg.RoleOf(viper.GetString("actor-id"))
}

func withApp(ctx context.Context, fn func(context.Context, app.App, domain.Role) error) error {
	ws := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: ws})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Init(ctx, conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(ws)
	if err != nil {
		return err
	}
	scope := viper.GetString("scope")
	if scope == "" && cfg != nil {
		scope = cfg.Scope.ID
	}
	if scope == "" {
		scope = "default"
	}
	if cfg == nil {
		cfg = config.Default(scope)
	}
	a := app.New(conn, scope, cfg)
	return fn(ctx, a, actorRole(cfg))
}

func listCmd() *cobra.Command {
	var kind, status, responsible string
	var open bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actionables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, _ domain.Role) error {
				items, err := a.List(ctx, app.ListFilters{
					Kind:        domain.Kind(kind),
					Status:      domain.Status(status),
					Responsible: domain.Role(responsible),
					Open:        open,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Title", "Status", "Responsible", "Severity", "Due"})
				for _, item := range items {
					due := string(item.DueKind)
					if item.DueAt != "" {
						due = item.DueAt
					} else if item.SLAHours > 0 {
						due = fmt.Sprintf("sla %dh", item.SLAHours)
					}
					tw.AppendRow(table.Row{item.ID, item.Kind, item.Title, item.Status, item.Responsible, item.Severity, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&responsible, "responsible", "", "responsible filter")
	cmd.Flags().BoolVar(&open, "open", false, "only non-terminal actionables")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one actionable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, _ domain.Role) error {
				item, err := a.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndented(item)
			})
		},
	}
	return cmd
}

func createCmd() *cobra.Command {
	var kind, title, description, severity, status string
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create or merge an actionable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind == "" || title == "" {
				return fmt.Errorf("--kind and --title required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, role domain.Role) error {
				k := domain.Kind(kind)
				st := domain.Status(status)
				if st == "" {
					st = domain.DefaultStatusForKind(k)
				}
				if !domain.IsStatusForKind(k, st) {
					return fmt.Errorf("invalid status %s for kind %s", st, k)
				}
				sev := domain.Severity(severity)
				if sev == "" {
					sev = domain.SeverityNormal
				}
				now := a.Now()
				item := domain.Actionable{
					ID:          args[0],
					Kind:        k,
					Title:       title,
					Description: description,
					Owner:       role,
					Responsible: domain.DeriveResponsible(k, st, role),
					Severity:    sev,
					DueKind:     domain.DueSLA,
					Status:      st,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				stored, err := a.Upsert(ctx, item, role)
				if err != nil {
					return err
				}
				return printJSONOrIndented(stored)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "actionable kind")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&severity, "severity", "", "severity (normal, high, urgent)")
	cmd.Flags().StringVar(&status, "status", "", "initial status (defaults per kind)")
	return cmd
}

func transitionCmd() *cobra.Command {
	var note, outcome, reasonCode string
	cmd := &cobra.Command{
		Use:   "transition <id> <target>",
		Short: "Apply a status transition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, role domain.Role) error {
				var res *engine.ResolutionInput
				if note != "" || outcome != "" || reasonCode != "" {
					res = &engine.ResolutionInput{
						Outcome:    outcome,
						ReasonCode: domain.ReasonCode(reasonCode),
						Note:       note,
					}
				}
				item, err := a.Transition(ctx, args[0], domain.Status(args[1]), role, res)
				if err != nil {
					return err
				}
				return printJSONOrIndented(item)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	cmd.Flags().StringVar(&outcome, "outcome", "", "resolution outcome (defaults to the target status)")
	cmd.Flags().StringVar(&reasonCode, "reason-code", "", "resolution reason code (defaults per target status)")
	return cmd
}

func assignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <id> <responsible>",
		Short: "Set the responsible party",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, role domain.Role) error {
				item, err := a.AssignResponsible(ctx, args[0], domain.Role(args[1]), role)
				if err != nil {
					return err
				}
				return printJSONOrIndented(item)
			})
		},
	}
	return cmd
}

func dueCmd() *cobra.Command {
	var kind, at string
	cmd := &cobra.Command{
		Use:   "due <id>",
		Short: "Set the due policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dk := domain.DueKind(kind)
			switch dk {
			case domain.DueSLA, domain.DueTarget:
			default:
				return fmt.Errorf("--due-kind must be sla or target")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, role domain.Role) error {
				item, err := a.SetDue(ctx, args[0], dk, at, role)
				if err != nil {
					return err
				}
				return printJSONOrIndented(item)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "due-kind", "sla", "due kind (sla, target)")
	cmd.Flags().StringVar(&at, "at", "", "target timestamp (RFC3339, for target)")
	return cmd
}

func deriveCmd() *cobra.Command {
	var title, description, severity string
	cmd := &cobra.Command{
		Use:   "derive <id>",
		Short: "Create a rule-generated task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, _ domain.Role) error {
				sev := domain.Severity(severity)
				if sev == "" {
					sev = domain.SeverityNormal
				}
				item, err := a.CreateDerivedTask(ctx, workspace.DerivedTaskInput{
					ID:          args[0],
					Title:       title,
					Description: description,
					Severity:    sev,
				})
				if err != nil {
					return err
				}
				return printJSONOrIndented(item)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&severity, "severity", "", "severity (normal, high, urgent)")
	return cmd
}

func statusesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statuses <kind>",
		Short: "Show the status set for a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.Kind(args[0])
			statuses := domain.StatusesForKind(kind)
			if len(statuses) == 0 {
				return fmt.Errorf("unknown kind %s", args[0])
			}
			if viper.GetBool("json") {
				return printJSON(statuses)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Status", "Terminal", "Responsible"})
			for _, st := range statuses {
				tw.AppendRow(table.Row{st, domain.IsTerminalStatus(kind, st), domain.DeriveResponsible(kind, st, "")})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func auditCmd() *cobra.Command {
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Workspace audit log",
	}
	audit.AddCommand(auditTailCmd())
	return audit
}

func auditTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, _ domain.Role) error {
				events, err := a.AuditTail(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "Entity", "Action", "Actor", "From", "To"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.At, evt.EntityID, evt.Action, evt.ActorRole, fmt.Sprint(evt.From), fmt.Sprint(evt.To)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "number", "n", 20, "number of events")
	return cmd
}

func legacyCmd() *cobra.Command {
	legacy := &cobra.Command{
		Use:   "legacy",
		Short: "Legacy document import and migration",
	}
	legacy.AddCommand(legacyImportCmd())
	legacy.AddCommand(legacyMigrateCmd())
	return legacy
}

func legacyImportCmd() *cobra.Command {
	var issuesPath, schedulingPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store legacy issue and scheduling documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if issuesPath == "" && schedulingPath == "" {
				return fmt.Errorf("--issues or --scheduling required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, _ domain.Role) error {
				now := a.Now()
				if issuesPath != "" {
					data, err := os.ReadFile(issuesPath)
					if err != nil {
						return err
					}
					if err := a.Snapshots.PutDocument(ctx, "issues:v1", data, now); err != nil {
						return err
					}
				}
				if schedulingPath != "" {
					data, err := os.ReadFile(schedulingPath)
					if err != nil {
						return err
					}
					if err := a.Snapshots.PutDocument(ctx, "scheduling:v1", data, now); err != nil {
						return err
					}
				}
				fmt.Println("imported; run 'cl legacy migrate' to build the workspace")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&issuesPath, "issues", "", "path to issues:v1 JSON")
	cmd.Flags().StringVar(&schedulingPath, "scheduling", "", "path to scheduling:v1 JSON")
	return cmd
}

func legacyMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Build and persist the workspace snapshot",
		Long:  "Loads the snapshot, projecting the legacy documents if no current-version snapshot exists, and persists the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, _ domain.Role) error {
				now := a.Now()
				state, err := a.Snapshots.Load(ctx, now)
				if err != nil {
					return err
				}
				if err := a.Snapshots.Save(ctx, state, now); err != nil {
					return err
				}
				fmt.Printf("workspace ready: %d actionables, %d threads, %d appointments\n",
					len(state.Workspace.Actionables), len(state.Workspace.Threads), len(state.Workspace.Appointments))
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var scopeID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default caseline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scopeID == "" {
				return fmt.Errorf("--scope-id required")
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(scopeID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&scopeID, "scope-id", "", "scope identifier")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrIndented(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
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
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, _ domain.Role) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("CASELINE_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("CASELINE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Caseline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func printJSONOrIndented(v any) error {
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
