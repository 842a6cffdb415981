package main

import (
	"log"
	"os"

	"npcheck/config"

	cli "github.com/jawher/mow.cli"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	app := cli.App("npc", "Compare Next prices between the UK and Israeli storefronts")
	server := app.String(cli.StringOpt{
		Name:   "s server",
		Desc:   "URL of a running background service; empty runs everything in process",
		EnvVar: "NPC_SERVER",
	})
	render := app.BoolOpt("r render", false, "load pages in a headless browser instead of a plain fetch")

	newEnv := func() *env {
		e, err := setup(cfg, *server, *render)
		if err != nil {
			log.Printf("❌ %v", err)
			cli.Exit(1)
		}
		return e
	}

	app.Command("check", "Compare a product page with its alternate page", func(cmd *cli.Cmd) {
		url := cmd.StringArg("URL", "", "product page URL")
		cmd.Action = func() {
			e := newEnv()
			defer e.Close()
			if err := e.check(*url, os.Stdout); err != nil {
				log.Printf("❌ %v", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("scan", "Annotate every product on a listing page", func(cmd *cli.Cmd) {
		url := cmd.StringArg("URL", "", "listing page URL")
		out := cmd.StringOpt("o out", "", "write the annotated page HTML to this file")
		cmd.Action = func() {
			e := newEnv()
			defer e.Close()
			if err := e.scan(*url, *out, os.Stdout); err != nil {
				log.Printf("❌ %v", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("price", "Print the price text shown on a product page", func(cmd *cli.Cmd) {
		url := cmd.StringArg("URL", "", "product page URL")
		cmd.Action = func() {
			e := newEnv()
			defer e.Close()
			if err := e.price(*url, os.Stdout); err != nil {
				log.Printf("❌ %v", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("rate", "Show the cached exchange rate", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			e := newEnv()
			defer e.Close()
			e.rate(os.Stdout)
		}
	})

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
