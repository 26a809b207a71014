// Command authctl performs operator tasks against the auth database:
// creating users and revoking every active session of a user.
//
//	authctl create-user --email a@example.com --name "Ada" --password '...' [--role admin]
//	authctl revoke-sessions --user-id <uuid>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hickoryhq/hickory/internal/app"
	"github.com/hickoryhq/hickory/internal/config"
	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/internal/event"
	"github.com/hickoryhq/hickory/internal/service"
	pkgkafka "github.com/hickoryhq/hickory/pkg/kafka"
	"github.com/hickoryhq/hickory/pkg/logger"
)

const usage = `usage:
  authctl create-user --email EMAIL --name NAME --password PASSWORD [--role ROLE]
  authctl revoke-sessions --user-id USER_ID`

var errUsage = errors.New(usage)

// userAdmin is the slice of the auth service authctl drives.
type userAdmin interface {
	CreateUser(ctx context.Context, input service.CreateUserInput) (*domain.User, error)
	RevokeAllSessions(ctx context.Context, userID, reason string) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log := logger.New("authctl", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := app.OpenPostgres(connectCtx, cfg, log)
	connectCancel()
	if err != nil {
		log.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
	defer func() {
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close error", slog.String("error", err.Error()))
		}
	}()

	svc := app.NewAuthService(cfg, pool, nil, app.NewTokenIssuer(cfg), event.NewProducer(producer, log), log)

	if err := run(ctx, os.Args[1:], svc, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, svc userAdmin, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "create-user":
		return createUser(ctx, args[1:], svc, out)
	case "revoke-sessions":
		return revokeSessions(ctx, args[1:], svc, out)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func createUser(ctx context.Context, args []string, svc userAdmin, out io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", domain.RoleAgent, "admin, agent or requester")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v: %w", err, errUsage)
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("--email and --password are required: %w", errUsage)
	}

	user, err := svc.CreateUser(ctx, service.CreateUserInput{
		Email:    *email,
		Name:     *name,
		Password: *password,
		Role:     *role,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(out, "created user %s id=%s role=%s\n", user.Email, user.ID, user.Role)
	return nil
}

func revokeSessions(ctx context.Context, args []string, svc userAdmin, out io.Writer) error {
	fs := flag.NewFlagSet("revoke-sessions", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user-id", "", "user whose sessions are revoked")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v: %w", err, errUsage)
	}
	if *userID == "" {
		return fmt.Errorf("--user-id is required: %w", errUsage)
	}

	n, err := svc.RevokeAllSessions(ctx, *userID, domain.RevokedReasonByAdministrator)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	fmt.Fprintf(out, "revoked %d active session(s) for user %s\n", n, *userID)
	return nil
}
