package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tokenswap/config"
	"tokenswap/crypto"
	"tokenswap/native/escrow"
	"tokenswap/native/registry"
	"tokenswap/observability/logging"
	"tokenswap/observability/otel"
	"tokenswap/rpc"
	"tokenswap/state"
	"tokenswap/storage"
)

const (
	envEnv        = "SWAPD_ENV"
	authTokenEnv  = "SWAPD_RPC_TOKEN"
	authSecretEnv = "SWAPD_RPC_SECRET"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	ephemeral := flag.Bool("ephemeral", false, "Run against an in-memory store instead of the data directory")
	genKey := flag.Bool("genkey", false, "Generate a new account keypair, print it and exit")
	flag.Parse()

	if *genKey {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			panic(fmt.Sprintf("Failed to generate key: %v", err))
		}
		fmt.Printf("address:    %s\n", key.PubKey().Address().String())
		fmt.Printf("privateKey: %s\n", hex.EncodeToString(key.Bytes()))
		return
	}

	env := strings.TrimSpace(os.Getenv(envEnv))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("swapd", env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, otel.Config{
		ServiceName: "swapd",
		Environment: env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialise tracing: %v", err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	var db storage.Database
	if *ephemeral {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	store := state.NewStore(db)
	ledger := registry.NewLedger(store)
	engine := escrow.NewEngine()
	engine.SetState(escrow.NewStateStore(store))
	engine.SetRegistry(ledger)

	auth := rpc.AuthConfig{
		HMACSecret: firstNonEmpty(os.Getenv(authSecretEnv), cfg.RPCAuthSecret),
		Issuer:     cfg.RPCAuthIssuer,
		Token:      firstNonEmpty(os.Getenv(authTokenEnv), cfg.RPCAuthToken),
	}
	server := rpc.NewServer(engine, ledger, logger, auth)
	server.SetRateLimit(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	logger.Info("starting swapd",
		"network", cfg.NetworkName,
		"dataDir", cfg.DataDir,
		"ephemeral", *ephemeral,
		logging.MaskField("rpcAuthToken", auth.Token),
		logging.MaskField("rpcAuthSecret", auth.HMACSecret),
	)
	if err := server.Serve(ctx, cfg.RPCAddress, cfg.ShutdownGrace()); err != nil {
		logger.Error("rpc server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("swapd stopped")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
