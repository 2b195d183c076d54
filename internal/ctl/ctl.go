// Package ctl implements mnistctl, the operator tool:
//
//	mnistctl migrate     -d DSN
//	mnistctl create-user -d DSN -u NAME [-r admin]
//	mnistctl load-corpus -d DSN -split test -images FILE -labels FILE
//
// -d defaults to $DATABASE_URL.
package ctl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/flagx"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/repomanager"
	"github.com/dmitrijs2005/mnistlab/internal/web/services"
)

// Test seams.
var (
	readPassword   = term.ReadPassword
	openDB         = dbx.Open
	newRepoManager = func() repomanager.RepositoryManager { return repomanager.NewPostgresRepositoryManager() }
)

var ErrUsage = errors.New("usage")

const usage = `usage: mnistctl <command> [flags]

commands:
  migrate      apply database migrations
  create-user  create an account, prompting for the password
  load-corpus  load MNIST IDX files into the sample corpus
`

type App struct {
	out    io.Writer
	logger logging.Logger
}

func NewApp(out io.Writer, logger logging.Logger) *App {
	return &App{out: out, logger: logger.With("module", "mnistctl")}
}

// Run dispatches args[0] to a subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		return a.migrate(ctx, args[1:])
	case "create-user":
		return a.createUser(ctx, args[1:])
	case "load-corpus":
		return a.loadCorpus(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (a *App) flagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	dsn := ""
	flagx.EnvString(&dsn, "DATABASE_URL")
	fs.StringVar(&dsn, "d", dsn, "database DSN (default $DATABASE_URL)")
	return fs, &dsn
}

func (a *App) open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: -d or DATABASE_URL is required", ErrUsage)
	}
	return openDB(ctx, dsn, dbx.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
}

func (a *App) migrate(ctx context.Context, args []string) error {
	fs, dsn := a.flagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	db, err := a.open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := newRepoManager().RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	fmt.Fprintln(a.out, "migrations applied")
	return nil
}

func (a *App) createUser(ctx context.Context, args []string) error {
	fs, dsn := a.flagSet("create-user")
	username := fs.String("u", "", "username")
	roleName := fs.String("r", string(models.RoleUser), "role: user or admin")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *username == "" {
		return fmt.Errorf("%w: -u is required", ErrUsage)
	}
	role, err := models.ParseRole(*roleName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	password, err := a.promptPassword()
	if err != nil {
		return err
	}

	db, err := a.open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := services.NewUserService(db, newRepoManager(), a.logger)
	summary, err := svc.CreateAccount(ctx, *username, password, role)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return fmt.Errorf("user %q already exists", *username)
		}
		return err
	}
	fmt.Fprintf(a.out, "created %s %q (%s)\n", summary.Role, summary.Username, summary.ID)
	return nil
}

// promptPassword reads the password twice without echo. The raw buffers are
// wiped before returning.
func (a *App) promptPassword() (string, error) {
	fmt.Fprint(a.out, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)

	fmt.Fprint(a.out, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if len(first) == 0 {
		return "", errors.New("empty password")
	}
	if !bytes.Equal(first, second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func (a *App) loadCorpus(ctx context.Context, args []string) error {
	fs, dsn := a.flagSet("load-corpus")
	split := fs.String("split", mnist.SplitTest, "split: train or test")
	imagesPath := fs.String("images", "", "IDX image file (optionally gzipped)")
	labelsPath := fs.String("labels", "", "IDX label file (optionally gzipped)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *imagesPath == "" || *labelsPath == "" {
		return fmt.Errorf("%w: -images and -labels are required", ErrUsage)
	}
	if !mnist.ValidSplit(*split) {
		return fmt.Errorf("%w: unknown split %q", ErrUsage, *split)
	}

	images, err := readIDX(*imagesPath, mnist.ReadIDXImages)
	if err != nil {
		return err
	}
	labels, err := readIDX(*labelsPath, mnist.ReadIDXLabels)
	if err != nil {
		return err
	}

	db, err := a.open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := services.NewCorpusService(db, newRepoManager(), a.logger).Load(ctx, *split, images, labels)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(a.out, "split %q already loaded, nothing to do\n", *split)
		return nil
	}
	fmt.Fprintf(a.out, "loaded %d samples into %q\n", n, *split)
	return nil
}

func readIDX[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
