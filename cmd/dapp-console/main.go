package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"community-dapp/go-client/internal/app"
	"community-dapp/go-client/internal/config"
	"community-dapp/go-client/internal/session"
	"community-dapp/go-client/internal/uistate"
	"community-dapp/go-client/internal/wallet"
	"community-dapp/go-client/internal/wallet/localprovider"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	mnemonic := flag.String("mnemonic", "", "BIP39 mnemonic for the local signer (required)")
	rpcURL := flag.String("rpc-url", "", "Override the RPC endpoint of the default chain")
	chainID := flag.Uint64("chain-id", 0, "Override the chain id of the default chain")
	remember := flag.Bool("remember", false, "Persist the login across runs")
	flag.Parse()
	if *showVersion {
		fmt.Printf("dapp-console version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *mnemonic, *rpcURL, *chainID, *remember); err != nil {
		log.Fatalf("dapp-console failed: %v", err)
	}
}

func run(ctx context.Context, configPath, mnemonic, rpcURL string, chainID uint64, remember bool) error {
	if mnemonic == "" {
		return fmt.Errorf("a -mnemonic is required")
	}

	cfg := config.LoadFromPath(configPath)
	if rpcURL != "" || chainID != 0 {
		if len(cfg.Chains) == 0 {
			cfg.Chains = append(cfg.Chains, config.ChainConfig{Name: "default"})
		}
		if rpcURL != "" {
			cfg.Chains[0].RPCURL = rpcURL
		}
		if chainID != 0 {
			cfg.Chains[0].ID = chainID
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	chains := make([]localprovider.Chain, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chains = append(chains, localprovider.Chain{ID: c.ID, Name: c.Name, RPCURL: c.RPCURL})
	}
	provider, err := localprovider.New(mnemonic, chains,
		localprovider.WithLogger(logger),
		localprovider.WithRequestRate(cfg.Transactions.RequestRatePerSec),
	)
	if err != nil {
		return fmt.Errorf("local signer: %w", err)
	}

	var storage session.Storage
	if cfg.Storage.Path != "" {
		if cfg.Storage.Passphrase != "" {
			storage = session.NewEncryptedFileStorage(cfg.Storage.Path, cfg.Storage.Passphrase)
		} else {
			storage = session.NewFileStorage(cfg.Storage.Path)
		}
	} else {
		storage = session.NewMemoryStorage()
	}

	ui := uistate.New()
	controller, err := app.New(app.Config{
		AppID:   cfg.App.ID,
		AppName: cfg.App.Name,
		WalletOptions: []wallet.Option{
			wallet.WithLogger(logger),
			wallet.WithConfirmation(cfg.Transactions.ConfirmationInterval, cfg.Transactions.ConfirmationTimeout),
		},
	}, provider, storage, ui, logger)
	if err != nil {
		return err
	}
	defer controller.Close()

	for _, channel := range []string{app.ChannelState, app.ChannelSessionState, app.ChannelError} {
		channel := channel
		if _, err := ui.Subscribe(channel, func(v any) {
			log.Printf("%s: %v", channel, v)
		}); err != nil {
			return err
		}
	}

	log.Printf("connecting wallet account %s", provider.Address())
	if err := provider.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := waitForSettled(ctx, controller); err != nil {
		return err
	}

	if err := controller.Login(ctx, remember); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if data, ok := ui.Value(app.ChannelSessionData); ok {
		raw, _ := json.MarshalIndent(data, "", "  ")
		log.Printf("session data:\n%s", raw)
	}

	if !remember {
		if err := controller.Logout(ctx); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}
	provider.Disconnect()
	return nil
}

// waitForSettled blocks until session initialisation finishes either way.
func waitForSettled(ctx context.Context, controller *app.Controller) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch controller.State() {
		case app.StateInitialised:
			return nil
		case app.StateFailed:
			return fmt.Errorf("session initialisation failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
