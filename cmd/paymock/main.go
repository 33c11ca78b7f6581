package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/billing/invoice"
	"github.com/paymocklabs/paymock/internal/billing/proration"
	"github.com/paymocklabs/paymock/internal/billing/subscription"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/config"
	"github.com/paymocklabs/paymock/internal/event"
	"github.com/paymocklabs/paymock/internal/observability"
	"github.com/paymocklabs/paymock/internal/redis"
	"github.com/paymocklabs/paymock/internal/seed"
	"github.com/paymocklabs/paymock/internal/server"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "paymock",
		Short:   "Local payments API emulator",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the emulator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func runServe() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		fx.Provide(ids.NewGenerator),
		clock.Module,
		store.Module,
		redis.Module,
		event.Module,
		factory.Module,
		proration.Module,
		invoice.Module,
		subscription.Module,
		seed.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
