package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	membership "github.com/goliatone/go-membership"
	"github.com/goliatone/go-membership/config"
	"github.com/goliatone/go-membership/export"
	"github.com/goliatone/go-membership/metrics"
	"github.com/goliatone/go-membership/persistence"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

const usage = `usage: membershipctl [-config file] <command> [flags]

commands:
  migrate        apply database migrations
  seed-roles     create the default roles
  register       register a member
  login          authenticate and print a session token
  verify         verify a session token and print its claims
  audit-export   export audit events as csv or xlsx
  audit-stats    print audit totals per action
`

type App struct {
	cfg      *config.Config
	db       *bun.DB
	logger   *membership.ZeroLogger
	registry *membership.Registry
	audit    *membership.AuditPipeline
	auther   *membership.Auther
}

func main() {
	configPath := flag.String("config", os.Getenv("MEMBERSHIP_CONFIG"), "path to TOML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(map[string]any{"error": err.Error()}))
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, command string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.db.Close()

	switch command {
	case "migrate":
		return app.printResult(map[string]any{"migrated": true})
	case "seed-roles":
		return app.printResult(map[string]any{"roles": app.registry.SeedRoles(ctx)})
	case "register":
		return app.register(ctx, args)
	case "login":
		return app.login(ctx, args)
	case "verify":
		return app.verify(args)
	case "audit-export":
		return app.auditExport(ctx, args)
	case "audit-stats":
		stats, err := app.audit.Stats(ctx)
		if err != nil {
			return err
		}
		return app.printResult(stats)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := membership.NewLogger(os.Stderr, "membershipctl", cfg.GetLogLevel())

	db, err := persistence.OpenAndMigrate(ctx, persistence.Options{
		Driver: cfg.GetDatabaseDriver(),
		DSN:    cfg.GetDatabaseDSN(),
		Debug:  cfg.GetDatabaseDebug(),
	})
	if err != nil {
		return nil, err
	}

	collector := metrics.New(prometheus.NewRegistry())
	repos := membership.NewRepositoryManager(db)
	repos.MustValidate()

	registry := membership.NewRegistry(repos,
		membership.NewCredentialStore(cfg.GetBcryptCost()),
		membership.WithRegistryLogger(logger.Named("registry")),
		membership.WithRegistryMetrics(collector),
	)

	audit := membership.NewAuditPipeline(repos,
		membership.WithAuditLogger(logger.Named("audit")),
		membership.WithAuditMetrics(collector),
		membership.WithAuditBatchSize(cfg.GetExportBatchSize()),
	)

	tokens, err := membership.NewTokenService(cfg,
		membership.WithTokenLogger(logger.Named("tokens")),
		membership.WithTokenMetrics(collector),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	auther := membership.NewAuthenticator(registry, tokens).
		WithLogger(logger.Named("auth")).
		WithAuditAppender(audit).
		WithMetrics(collector)

	return &App{
		cfg:      cfg,
		db:       db,
		logger:   logger,
		registry: registry,
		audit:    audit,
		auther:   auther,
	}, nil
}

func (a *App) printResult(v any) error {
	fmt.Println(print.MaybePrettyJSON(v))
	return nil
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var in membership.RegistrationInput
	fs.StringVar(&in.MemberNumber, "member", "", "member number")
	fs.StringVar(&in.NationalCode, "national-code", "", "10 digit national code")
	fs.StringVar(&in.PhoneNumber, "phone", "", "11 digit phone number")
	fs.StringVar(&in.Gender, "gender", "", "sister or brother")
	fs.StringVar(&in.Address, "address", "", "postal address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	handler := membership.NewRegisterMemberHandler(a.registry).
		WithAuditAppender(a.audit).
		WithLogger(a.logger.Named("commands"))

	identity, err := handler.Register(ctx, membership.RegisterMemberMessage{Input: in})
	if err != nil {
		return err
	}
	return a.printResult(identity)
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	member := fs.String("member", "", "member number")
	secret := fs.String("secret", "", "secret, defaults to the member number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		*secret = *member
	}

	artifact, err := a.auther.Login(ctx, *member, *secret, "")
	if err != nil {
		return err
	}
	return a.printResult(artifact)
}

func (a *App) verify(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("verify expects exactly one token")
	}
	claims, err := a.auther.TokenService().VerifyToken(args[0])
	if err != nil {
		return err
	}
	return a.printResult(claims)
}

func (a *App) auditExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("audit-export", flag.ContinueOnError)
	format := fs.String("format", string(export.FormatCSV), "csv or xlsx")
	out := fs.String("out", "", "output file, stdout when empty")
	action := fs.String("action", "", "only events with this action")
	actor := fs.String("actor", "", "only events of this actor id")
	from := fs.String("from", "", "RFC 3339 lower bound on created_at")
	to := fs.String("to", "", "RFC 3339 upper bound on created_at")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filters := membership.AuditFilters{Action: *action}
	if *actor != "" {
		id, err := strconv.ParseInt(*actor, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid actor id %q: %w", *actor, err)
		}
		filters.ActorID = &id
	}
	for _, bound := range []struct {
		raw string
		dst **time.Time
	}{{*from, &filters.DateFrom}, {*to, &filters.DateTo}} {
		if bound.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, bound.raw)
		if err != nil {
			return fmt.Errorf("invalid time %q: %w", bound.raw, err)
		}
		*bound.dst = &t
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if err := a.audit.Export(ctx, w, export.Format(*format), filters); err != nil {
		return err
	}

	a.audit.Append(ctx, membership.AuditEntry{
		Action:      membership.ActionAuditExport,
		Entity:      membership.EntityAudit,
		Description: fmt.Sprintf("exported audit events as %s", *format),
	})
	return nil
}
