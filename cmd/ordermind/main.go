package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/rahul/ordermind/pkg/config"
)

var version = "dev"

func init() {
	// Load .env for API keys and gateway tokens
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ordermind"),
		kong.Description("Order operations assistant for chat, with human-confirmed remittance workflows."),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

func (c *CLI) loadConfig() *config.Config {
	return config.LoadConfig(c.Config)
}

func (v *VersionCmd) Run(cli *CLI) error {
	fmt.Printf("ordermind version %s\n", version)
	return nil
}
