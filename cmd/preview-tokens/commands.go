package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/preview-token-issuer/internal/auth"
	"github.com/sipico/preview-token-issuer/internal/backfill"
	"github.com/sipico/preview-token-issuer/internal/config"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Bring the database schema up to date",
		Action: func(c *cli.Context) error {
			d, err := setup(c, (*config.Config).Validate)
			if err != nil {
				return err
			}
			store, err := d.openStorage()
			if err != nil {
				return err
			}
			defer closeStorage(store, d.logger)

			v, err := store.SchemaVersion(c.Context)
			if err != nil {
				return err
			}
			d.logger.Info("schema up to date", "version", v, "database_path", d.cfg.DatabasePath)
			fmt.Fprintf(c.App.Writer, "schema version %d\n", v)
			return nil
		},
	}
}

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Populate missing preview deploy tokens and updated service slug lists",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum projects to give a token in this run, 0 for all (default BACKFILL_BATCH_LIMIT)",
			},
			&cli.BoolFlag{Name: "tokens-only", Usage: "only backfill preview deploy tokens"},
			&cli.BoolFlag{Name: "slugs-only", Usage: "only backfill updated service slugs"},
		},
		Action: runBackfill,
	}
}

func runBackfill(c *cli.Context) error {
	tokensOnly, slugsOnly := c.Bool("tokens-only"), c.Bool("slugs-only")
	if tokensOnly && slugsOnly {
		return errors.New("--tokens-only and --slugs-only are mutually exclusive")
	}

	d, err := setup(c, (*config.Config).Validate)
	if err != nil {
		return err
	}
	limit := d.cfg.BackfillBatchLimit
	if c.IsSet("limit") {
		limit = c.Int("limit")
		if limit < 0 {
			return errors.New("--limit must not be negative")
		}
	}

	store, err := d.openStorage()
	if err != nil {
		return err
	}
	defer closeStorage(store, d.logger)
	svc := d.newService(store, d.cfg.TokenPrefix)

	var rowErrs []error
	if !slugsOnly {
		report, err := svc.BackfillTokens(c.Context, limit)
		printReport(c.App.Writer, backfill.FieldPreviewToken, report)
		if err != nil {
			return fmt.Errorf("token backfill aborted: %w", err)
		}
		rowErrs = append(rowErrs, report.Err)
	}
	if !tokensOnly {
		report, err := svc.BackfillSlugLists(c.Context)
		printReport(c.App.Writer, backfill.FieldServiceSlugs, report)
		if err != nil {
			return fmt.Errorf("slug list backfill aborted: %w", err)
		}
		rowErrs = append(rowErrs, report.Err)
	}

	if err := errors.Join(rowErrs...); err != nil {
		return fmt.Errorf("backfill finished with failed rows: %w", err)
	}
	return nil
}

func printReport(w io.Writer, field string, r backfill.Report) {
	fmt.Fprintf(w, "%s: scanned=%d updated=%d skipped=%d failed=%d\n",
		field, r.Scanned, r.Updated, r.Skipped, r.Failed)
}

func issueCommand() *cli.Command {
	return &cli.Command{
		Name:  "issue",
		Usage: "Print a fresh token not present in the issued-token ledger (nothing is stored)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefix", Usage: "token prefix (default TOKEN_PREFIX)"},
		},
		Action: func(c *cli.Context) error {
			d, err := setup(c, (*config.Config).Validate)
			if err != nil {
				return err
			}
			prefix := d.cfg.TokenPrefix
			if c.IsSet("prefix") {
				prefix = c.String("prefix")
			}

			store, err := d.openStorage()
			if err != nil {
				return err
			}
			defer closeStorage(store, d.logger)

			tok, err := d.newService(store, prefix).IssueToken(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, tok)
			return nil
		},
	}
}

func hashAdminTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-admin-token",
		Usage: "Read an admin bearer token from stdin and print its bcrypt hash for ADMIN_TOKEN_HASH",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "cost", Value: bcrypt.DefaultCost, Usage: "bcrypt cost"},
		},
		Action: func(c *cli.Context) error {
			line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read token: %w", err)
			}
			tok := strings.TrimSpace(line)
			if tok == "" {
				return errors.New("token must not be empty")
			}

			hash, err := auth.HashTokenCost(tok, c.Int("cost"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}
