package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Mailwright/internal/config"
	"Mailwright/internal/csvparser"
	"Mailwright/internal/db"
	"Mailwright/internal/models"
	"Mailwright/internal/placeholder"
	"Mailwright/internal/queue"
	"Mailwright/internal/render"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type runtime struct {
	out     io.Writer
	verbose bool
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCommand(out io.Writer) *cobra.Command {
	rt := &runtime{out: out}

	root := &cobra.Command{
		Use:          "mailctl",
		Short:        "Operate the Mailwright notification service",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newMigrateCommand(rt),
		newEnqueueCommand(rt),
		newPreviewCommand(rt),
		newQueueCommand(rt),
	)
	return root
}

// load reads config and builds the logger on first use, so flag validation
// runs before anything touches the environment.
func (rt *runtime) load() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if rt.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zcfg.OutputPaths = []string{"stderr"}
	log, err := zcfg.Build()
	if err != nil {
		return err
	}

	rt.cfg, rt.log = cfg, log
	return nil
}

func (rt *runtime) store(ctx context.Context) (*db.Store, error) {
	if err := rt.load(); err != nil {
		return nil, err
	}
	store, err := db.New(ctx, rt.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return store, nil
}

func (rt *runtime) queue(ctx context.Context, consumer string) (*queue.Queue, func(), error) {
	if err := rt.load(); err != nil {
		return nil, nil, err
	}
	conn := queue.NewConn(rt.cfg.RedisURL, rt.log)
	if err := conn.Open(ctx); err != nil {
		return nil, nil, err
	}
	if consumer == "" {
		consumer = rt.cfg.ConsumerName
	}
	q, err := conn.Queue(rt.cfg.QueuePrefix, rt.cfg.QueueName, consumer, rt.cfg.PollTimeout)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return q, func() { conn.Close() }, nil
}

// ------------------------------------------------
// migrate
// ------------------------------------------------

func newMigrateCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := rt.store(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(rt.out, "schema up to date")
			return nil
		},
	}

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Drop every table (destroys data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errors.New("refusing to drop tables without --yes")
			}
			store, err := rt.store(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Rollback(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(rt.out, "schema dropped")
			return nil
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "Confirm dropping all tables")

	cmd.AddCommand(up, down)
	return cmd
}

// ------------------------------------------------
// enqueue
// ------------------------------------------------

func newEnqueueCommand(rt *runtime) *cobra.Command {
	var (
		job     models.VerifyEmailJob
		csvPath string
		maxRows int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish verify-email jobs",
		Long:  "Publish one job from flags, or one job per row of a CSV with Email, Username and VerifyEmailUrl columns.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := enqueueJobs(job, csvPath, maxRows)
			if err != nil {
				return err
			}

			q, closeQ, err := rt.queue(cmd.Context(), "")
			if err != nil {
				return err
			}
			defer closeQ()

			for i, j := range jobs {
				body, err := json.Marshal(j)
				if err != nil {
					return err
				}
				tag, err := q.Publish(cmd.Context(), body)
				if err != nil {
					return fmt.Errorf("publish job %d of %d: %w", i+1, len(jobs), err)
				}
				rt.log.Debug("job published", zap.String("tag", tag), zap.String("to", j.Email))
			}
			fmt.Fprintf(rt.out, "queued %d job(s) on %s\n", len(jobs), q.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&job.Email, "email", "", "Recipient address")
	cmd.Flags().StringVar(&job.Username, "username", "", "Value for the username placeholder")
	cmd.Flags().StringVar(&job.VerifyEmailURL, "url", "", "Value for the verifyEmailUrl placeholder")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with one recipient per row")
	cmd.Flags().IntVar(&maxRows, "max-rows", 1000, "Maximum CSV rows to read")
	cmd.MarkFlagsMutuallyExclusive("email", "csv")

	return cmd
}

func enqueueJobs(job models.VerifyEmailJob, csvPath string, maxRows int) ([]models.VerifyEmailJob, error) {
	if csvPath != "" {
		return csvparser.ParseFile(csvPath, maxRows)
	}
	job.Email = strings.TrimSpace(job.Email)
	if job.Email == "" {
		return nil, errors.New("either --email or --csv is required")
	}
	return []models.VerifyEmailJob{job}, nil
}

// ------------------------------------------------
// preview
// ------------------------------------------------

func newPreviewCommand(rt *runtime) *cobra.Command {
	var (
		templateType string
		vars         map[string]string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the in-use template of a type without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tt := models.TemplateType(strings.ToUpper(templateType))
			if !tt.Valid() {
				return fmt.Errorf("unknown template type %q", templateType)
			}

			store, err := rt.store(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			resolved, err := placeholder.NewResolver(store, 0, rt.log).Resolve(cmd.Context(), tt)
			if err != nil {
				return err
			}

			renderer := render.New(rt.cfg.PlaceholderPrefix, rt.cfg.PlaceholderSuffix, render.Defaults{
				AppName:     rt.cfg.AppName,
				SupportMail: rt.cfg.SupportMail,
				Signature:   rt.cfg.Signature,
			})
			subject, body := renderer.Render(resolved.Template, render.Variables(resolved.Placeholders, vars))

			fmt.Fprintf(rt.out, "Subject: %s\n\n%s\n", subject, body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateType, "type", "t", string(models.TemplateVerifyEmail), "Template type")
	cmd.Flags().StringToStringVar(&vars, "set", nil, "Placeholder values, e.g. --set username=alice")

	return cmd
}

// ------------------------------------------------
// queue
// ------------------------------------------------

func newQueueCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the verify-email queue",
	}

	depth := &cobra.Command{
		Use:   "depth",
		Short: "Print the number of waiting jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, closeQ, err := rt.queue(cmd.Context(), "")
			if err != nil {
				return err
			}
			defer closeQ()

			n, err := q.Depth(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "%s: %d waiting\n", q.Name(), n)
			return nil
		},
	}

	var consumer string
	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Requeue deliveries a stopped consumer never acknowledged",
		Long:  "Requeue the processing list of a consumer that is no longer running. Refused while that consumer still holds its lease.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if consumer == "" {
				return errors.New("--consumer is required")
			}
			q, closeQ, err := rt.queue(cmd.Context(), consumer)
			if err != nil {
				return err
			}
			defer closeQ()

			// A live consumer still holds its lease; its deliveries are not stranded.
			lease, err := q.Lease(cmd.Context(), time.Minute)
			if err != nil {
				return err
			}
			defer lease.Release(context.Background())

			n, err := q.Recover(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "requeued %d delivery(ies) from %s\n", n, consumer)
			return nil
		},
	}
	recoverCmd.Flags().StringVar(&consumer, "consumer", "", "Consumer whose processing list is drained")

	cmd.AddCommand(depth, recoverCmd)
	return cmd
}
