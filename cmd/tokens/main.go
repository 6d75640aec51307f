package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/bookstore/pkg/apitokens"
	"github.com/shishobooks/bookstore/pkg/config"
	"github.com/shishobooks/bookstore/pkg/database"
	"github.com/shishobooks/bookstore/pkg/migrations"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	tokenService := apitokens.NewService(db)

	app := &cli.App{
		Name:        "tokens",
		Usage:       "CLI to manage API tokens",
		Description: "CLI to manage the tokens accepted when auth is enabled",
		Before: func(c *cli.Context) error {
			_, err := migrations.BringUpToDate(c.Context, db)
			return err
		},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "create a token and print its key",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name := strings.Join(c.Args().Slice(), " ")
					token, err := tokenService.Create(c.Context, name)
					if err != nil {
						return err
					}
					fmt.Printf("Created token %s (%s)\n", token.ID, token.Name)
					fmt.Printf("Key: %s\n", token.Key)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list tokens",
				Action: func(c *cli.Context) error {
					tokens, err := tokenService.List(c.Context)
					if err != nil {
						return err
					}
					if len(tokens) == 0 {
						fmt.Printf("There are no tokens\n")
						return nil
					}

					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tNAME\tCREATED\tLAST USED")
					for _, token := range tokens {
						lastUsed := "never"
						if token.LastUsedAt != nil {
							lastUsed = token.LastUsedAt.Format(time.RFC3339)
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", token.ID, token.Name, token.CreatedAt.Format(time.RFC3339), lastUsed)
					}
					return w.Flush()
				},
			},
			{
				Name:      "revoke",
				Usage:     "revoke a token by id",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("expected exactly one token id")
					}
					id := c.Args().First()
					err := tokenService.Revoke(c.Context, id)
					if errors.Is(err, apitokens.ErrNotFound) {
						return errors.Errorf("no token with id %s", id)
					}
					if err != nil {
						return err
					}
					fmt.Printf("Revoked token %s\n", id)
					return nil
				},
			},
		},
	}
	runErr := app.Run(os.Args)
	if err := db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
	if runErr != nil {
		log.Err(runErr).Fatal("app run error")
	}
}
