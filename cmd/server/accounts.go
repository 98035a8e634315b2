package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/relaychat/internal/account"
)

func accountsCommand() *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "List the accounts stored in a data directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data-dir",
				Usage:    "Account store directory",
				Required: true,
			},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			store, err := account.OpenBadgerStore(c.String("data-dir"), zerolog.Nop())
			if err != nil {
				return fmt.Errorf("open account store (is the server still running?): %w", err)
			}
			defer func() { _ = store.Close() }()

			return printAccounts(os.Stdout, store)
		},
	}
}

func printAccounts(w io.Writer, store account.Store) error {
	names, err := store.Usernames()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Username", "Created"})
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	for _, name := range names {
		a, err := store.Get(name)
		if errors.Is(err, account.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		table.Append([]string{a.Username, a.CreatedAt.Format(time.RFC3339)})
	}

	table.Render()
	return nil
}
