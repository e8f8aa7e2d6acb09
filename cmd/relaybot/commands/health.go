package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jholhewres/relaybot/pkg/relaybot/config"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/limiter"
)

// healthCheck is one row of the health table.
type healthCheck struct {
	Name   string
	OK     bool
	Detail string
}

// newHealthCmd creates `relaybot health`, used by container health checks.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the store, state backend and media tools",
		Long:  `Print a health table and exit non-zero when a check fails. Used by Docker HEALTHCHECK and monitoring.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			checks := runHealthChecks(ctx, cfg, store)
			renderHealth(checks)
			for _, c := range checks {
				if !c.OK {
					return errors.New("health check failed")
				}
			}
			return nil
		},
	}
}

func runHealthChecks(ctx context.Context, cfg *config.Config, store *database.Store) []healthCheck {
	var checks []healthCheck
	backend := store.Backend()

	st := backend.Status(ctx)
	dbCheck := healthCheck{Name: "database", OK: st.Healthy}
	if st.Healthy {
		dbCheck.Detail = fmt.Sprintf("%s %s, %s", backend.Type, st.Version, st.Latency.Round(time.Microsecond))
	} else {
		dbCheck.Detail = st.Error
	}
	checks = append(checks, dbCheck)

	if version, err := backend.Migrator.CurrentVersion(ctx); err != nil {
		checks = append(checks, healthCheck{Name: "schema", Detail: err.Error()})
	} else {
		outdated, _ := backend.Migrator.NeedsMigration(ctx)
		checks = append(checks, healthCheck{Name: "schema", OK: !outdated, Detail: "version " + strconv.Itoa(version)})
	}

	users, err := store.CountUsers(ctx)
	checks = append(checks, healthCheck{Name: "users", OK: err == nil, Detail: countDetail(users, err)})

	plans, err := store.ListPremium(ctx)
	checks = append(checks, healthCheck{Name: "premium plans", OK: err == nil, Detail: countDetail(int64(len(plans)), err)})

	sessions, err := store.CountSessions(ctx)
	checks = append(checks, healthCheck{Name: "sessions", OK: err == nil, Detail: countDetail(sessions, err)})

	if cfg.State.Backend == "redis" {
		rc, err := limiter.NewRedisCooldown(ctx, cfg.State.Redis)
		c := healthCheck{Name: "redis", OK: err == nil, Detail: cfg.State.Redis.Addr}
		if err != nil {
			c.Detail = err.Error()
		} else {
			rc.Close()
		}
		checks = append(checks, c)
	}

	for _, tool := range []string{cfg.Media.Tools.FFmpegPath, cfg.Media.Tools.FFprobePath} {
		if tool == "" {
			continue
		}
		path, err := exec.LookPath(tool)
		c := healthCheck{Name: tool, OK: err == nil, Detail: path}
		if err != nil {
			c.Detail = "not found (thumbnails and audio extraction disabled)"
			c.OK = true
		}
		checks = append(checks, c)
	}

	ws := healthCheck{Name: "workspace", Detail: cfg.Media.Workspace.Dir}
	if err := os.MkdirAll(cfg.Media.Workspace.Dir, 0o700); err != nil {
		ws.Detail = err.Error()
	} else if f, err := os.CreateTemp(cfg.Media.Workspace.Dir, ".health-*"); err != nil {
		ws.Detail = err.Error()
	} else {
		f.Close()
		os.Remove(f.Name())
		ws.OK = true
	}
	checks = append(checks, ws)

	return checks
}

func countDetail(n int64, err error) string {
	if err != nil {
		return err.Error()
	}
	return strconv.FormatInt(n, 10)
}

func renderHealth(checks []healthCheck) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Check", "Status", "Detail"})
	table.SetAutoWrapText(false)
	for _, c := range checks {
		status := "ok"
		if !c.OK {
			status = "FAIL"
		}
		table.Append([]string{c.Name, status, c.Detail})
	}
	table.Render()
}
