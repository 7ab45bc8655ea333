package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/accessgate/internal/adapters/api"
	"github.com/poyrazK/accessgate/internal/adapters/notify"
	"github.com/poyrazK/accessgate/internal/adapters/repository"
	"github.com/poyrazK/accessgate/internal/config"
	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/poyrazK/accessgate/internal/core/engine"
	"github.com/poyrazK/accessgate/internal/core/ports"
	"github.com/poyrazK/accessgate/internal/core/services"
	"github.com/spf13/pflag"
)

const usage = "expected 'list', 'stats', 'approve', 'deny', 'revoke', 'remove', 'request', 'grant' or 'token' subcommands"

func main() {
	cfg, err := config.Load(os.Getenv("ACCESSGATE_CONFIG"))
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	repo, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeStore()

	// Changes made here must reach live consoles, so publish through the
	// same notifier the server listens on.
	var notifier ports.ChangeNotifier = notify.NewLocalNotifier()
	if cfg.Notifier == config.NotifierRedis {
		rn := notify.NewRedisNotifier(cfg.RedisAddr, "", 0)
		defer func() {
			if err := rn.Close(); err != nil {
				log.Printf("failed to close redis: %v", err)
			}
		}()
		notifier = rn
	}

	svc := services.NewAccessService(repo, notifier, services.ServiceConfig{
		UnitPrice:    cfg.UnitPriceCents,
		PaidDuration: cfg.PaidDuration(),
	}, nil)

	if err := run(os.Args, os.Stdout, svc, cfg.JWTSecret); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openStore connects to the shared access store. The in-memory store lives
// inside a single accessgate process, so the CLI cannot reach it.
func openStore(cfg config.Config) (ports.AccessRepository, func(), error) {
	if cfg.Store != config.StorePostgres {
		return nil, nil, fmt.Errorf("accessctl requires the %s store, configuration selects %q", config.StorePostgres, cfg.Store)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repository.NewPostgresRepository(db), func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}, nil
}

func run(args []string, out io.Writer, svc ports.AccessService, secret string) error {
	if len(args) < 2 {
		return errors.New(usage)
	}
	ctx := context.Background()

	fs := pflag.NewFlagSet(args[1], pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.StringP("subject", "s", "", "Subject email address")
	admin := fs.StringP("admin", "a", os.Getenv("ACCESSCTL_ADMIN"), "Acting admin identity")
	category := fs.StringP("category", "c", "all", "Filter: all, pending, approved, paid, expired, denied")
	notes := fs.String("notes", "", "Free text attached to an access request")
	days := fs.Int("days", 0, "Paid grant length in days (0 uses the configured default)")
	purchased := fs.String("purchased", "", "Purchase time, RFC 3339 (defaults to now)")
	role := fs.String("role", string(domain.RoleAdmin), "Token role: admin, reader or billing")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")

	switch args[1] {
	case "list", "stats", "approve", "deny", "revoke", "remove", "request", "grant", "token":
	default:
		return fmt.Errorf("unknown subcommand: %s", args[1])
	}
	if err := fs.Parse(args[2:]); err != nil {
		return fmt.Errorf("failed to parse %s flags: %w", args[1], err)
	}

	switch args[1] {
	case "list":
		return listAccess(ctx, svc, *category, out)
	case "stats":
		return printStats(ctx, svc, out)
	case "approve":
		return adminAction(ctx, "approved", svc.Approve, *subject, *admin, out)
	case "deny":
		return adminAction(ctx, "denied", svc.Deny, *subject, *admin, out)
	case "revoke":
		return adminAction(ctx, "revoked", svc.Revoke, *subject, *admin, out)
	case "remove":
		return adminAction(ctx, "removed", svc.Remove, *subject, *admin, out)
	case "request":
		return requestAccess(ctx, svc, *subject, *notes, out)
	case "grant":
		return grantPaid(ctx, svc, *subject, *purchased, *days, out)
	default:
		return issueToken(secret, *subject, *role, *ttl, out)
	}
}

func listAccess(ctx context.Context, svc ports.AccessService, filter string, out io.Writer) error {
	category, err := domain.ParseCategory(filter)
	if err != nil {
		return err
	}
	records, err := svc.List(ctx, category)
	if err != nil {
		return err
	}

	now := time.Now()
	fmt.Fprintf(out, "%-32s %-16s %-10s %-18s %-20s\n", "Subject", "Type", "Status", "Display", "Requested")
	for _, r := range records {
		fmt.Fprintf(out, "%-32s %-16s %-10s %-18s %-20s\n",
			r.SubjectID, r.AccessType, r.Status, engine.Classify(r, now), r.RequestedAt.Format(time.RFC3339))
	}
	return nil
}

func printStats(ctx context.Context, svc ports.AccessService, out io.Writer) error {
	stats, err := svc.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Total:            %d\n", stats.Total)
	fmt.Fprintf(out, "Pending:          %d\n", stats.PendingCount)
	fmt.Fprintf(out, "Active paid:      %d\n", stats.ActivePaidCount)
	fmt.Fprintf(out, "Monthly revenue:  %d.%02d\n", stats.EstimatedMonthlyRevenue/100, stats.EstimatedMonthlyRevenue%100)
	return nil
}

func adminAction(ctx context.Context, verb string, action func(context.Context, string, string) error, subject, admin string, out io.Writer) error {
	if subject == "" {
		return errors.New("--subject is required")
	}
	if admin == "" {
		return errors.New("--admin is required (or set ACCESSCTL_ADMIN)")
	}
	if err := action(ctx, subject, admin); err != nil {
		return err
	}
	fmt.Fprintf(out, "Access for %s %s by %s\n", subject, verb, admin)
	return nil
}

func requestAccess(ctx context.Context, svc ports.AccessService, subject, notes string, out io.Writer) error {
	if subject == "" {
		return errors.New("--subject is required")
	}
	rec, err := svc.RequestAccess(ctx, subject, notes)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Access requested for %s (status %s)\n", rec.SubjectID, rec.Status)
	return nil
}

func grantPaid(ctx context.Context, svc ports.AccessService, subject, purchased string, days int, out io.Writer) error {
	if subject == "" {
		return errors.New("--subject is required")
	}
	if days < 0 || days > domain.MaxGrantDays {
		return fmt.Errorf("--days must be between 0 and %d", domain.MaxGrantDays)
	}
	var purchasedAt time.Time
	if purchased != "" {
		t, err := time.Parse(time.RFC3339, purchased)
		if err != nil {
			return fmt.Errorf("invalid --purchased: %w", err)
		}
		purchasedAt = t
	}

	rec, err := svc.GrantPaid(ctx, subject, purchasedAt, time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	expiry := "-"
	if rec.ExpiryDate != nil {
		expiry = rec.ExpiryDate.Format(time.RFC3339)
	}
	fmt.Fprintf(out, "Paid access for %s active until %s\n", rec.SubjectID, expiry)
	return nil
}

func issueToken(secret, subject, role string, ttl time.Duration, out io.Writer) error {
	if secret == "" {
		return errors.New("JWT_SECRET is not configured")
	}
	if subject == "" {
		return errors.New("--subject is required")
	}
	r := domain.Role(role)
	switch r {
	case domain.RoleAdmin, domain.RoleReader, domain.RoleBilling:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	token, err := api.IssueToken(secret, domain.Principal{ID: subject, Role: r}, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Token for %s (%s), expires %s\n", subject, r, time.Now().Add(ttl).Format(time.RFC3339))
	fmt.Fprintln(out, token)
	return nil
}
