package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/credential-registry-backend/cmd/flags"
	"github.com/ruteri/credential-registry-backend/common"
	"github.com/ruteri/credential-registry-backend/custodians"
	"github.com/ruteri/credential-registry-backend/httpserver"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/issuance"
	"github.com/ruteri/credential-registry-backend/metrics"
	"github.com/ruteri/credential-registry-backend/records"
	"github.com/ruteri/credential-registry-backend/registry"
	"github.com/ruteri/credential-registry-backend/storage"
	"github.com/ruteri/credential-registry-backend/verifier"
	"github.com/urfave/cli/v2"
)

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.RpcAddrFlag,
	flags.RegistryContractFlag,
	flags.IssuerKeyFlag,
	flags.StorageFlag,
	flags.RecordsDirFlag,
	flags.CustodiansFileFlag,
	flags.DefaultIssuerFlag,
	flags.MaxUploadMBFlag,
	flags.ThresholdFlag,
	flags.TotalSharesFlag,
	flags.MinSealedFlag,
	flags.StorageTimeoutFlag,
	flags.RegistryTimeoutFlag,
	flags.PersistTimeoutFlag,
	flags.RegistryRetriesFlag,
	flags.LookupTimeoutFlag,
	flags.LogServiceFlagFn("credential-registry"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "credential-server",
		Usage:  "Issue and verify academic credentials against an on-chain registry",
		Flags:  serverFlags,
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	issuanceCfg, err := flags.ConfigureIssuance(cCtx)
	if err != nil {
		return err
	}
	serverCfg := flags.ConfigureServer(cCtx, logger)

	metricsSrv, err := metrics.New(common.PackageName, serverCfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}
	instruments := metrics.NewMetrics(metricsSrv.Namespace(), metricsSrv.Registry())

	credentialRegistry, err := setupRegistry(cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up registry", "err", err)
		return err
	}

	objectStorage, err := setupStorage(cCtx.StringSlice(flags.StorageFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to set up storage", "err", err)
		return err
	}

	directory, err := custodians.LoadDirectoryFile(cCtx.String(flags.CustodiansFileFlag.Name))
	if err != nil {
		logger.Error("Failed to load custodian directory", "err", err)
		return err
	}
	if directory.Len() < issuanceCfg.TotalShares {
		return fmt.Errorf("custodian directory lists %d custodians, %d shares configured", directory.Len(), issuanceCfg.TotalShares)
	}
	logger.Info("Custodian directory loaded", "custodians", directory.Len(),
		"threshold", issuanceCfg.Threshold, "shares", issuanceCfg.TotalShares)

	recordStore, closeRecords, err := setupRecords(cCtx.String(flags.RecordsDirFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to open record store", "err", err)
		return err
	}
	defer closeRecords()

	issuer, err := issuance.New(issuanceCfg, issuance.Dependencies{
		Registry:   credentialRegistry,
		Storage:    objectStorage,
		Custodians: directory,
		Records:    recordStore,
		Metrics:    instruments,
		Log:        logger,
	})
	if err != nil {
		return err
	}

	resolver, err := verifier.NewResolver(flags.ConfigureVerifier(cCtx), credentialRegistry, recordStore, instruments, logger)
	if err != nil {
		return err
	}

	handler := httpserver.NewHandler(issuer, resolver, recordStore, directory, serverCfg, logger)
	server, err := httpserver.New(serverCfg, handler, metricsSrv, instruments)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func setupRegistry(cCtx *cli.Context, logger *slog.Logger) (interfaces.CredentialRegistry, error) {
	contract := cCtx.String(flags.RegistryContractFlag.Name)
	issuerKey := cCtx.String(flags.IssuerKeyFlag.Name)

	if contract == "" {
		logger.Warn("No registry contract configured, using in-memory registry. Registrations are lost on restart")
		return registry.NewMemoryRegistry("0x0000000000000000000000000000000000000000"), nil
	}
	if !ethcommon.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid registry contract address %q", contract)
	}

	rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
	logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
	ethClient, err := ethclient.Dial(rpcAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}

	onchain, err := registry.NewOnchainCredentialRegistry(ethClient, ethClient, ethcommon.HexToAddress(contract), logger)
	if err != nil {
		return nil, err
	}

	if issuerKey == "" {
		logger.Warn("No issuer key configured, registry is read-only")
		return onchain, nil
	}

	key, err := crypto.HexToECDSA(issuerKey)
	if err != nil {
		return nil, errors.New("invalid issuer key")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	onchain.SetTransactOpts(auth)

	logger.Info("Registry configured", "contract", onchain.Address().Hex(),
		"issuer", auth.From.Hex(), "chainId", chainID.String())
	return onchain, nil
}

func setupStorage(uris []string, logger *slog.Logger) (interfaces.StorageBackend, error) {
	if len(uris) == 0 {
		return nil, errors.New("at least one storage backend is required")
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	return storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
}

func setupRecords(dir string, logger *slog.Logger) (interfaces.RecordStore, func(), error) {
	if dir == "" {
		logger.Warn("No records directory configured, issuance records are kept in memory")
		return records.NewMemoryStore(), func() {}, nil
	}

	store, err := records.OpenBadgerStore(dir, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close record store", "err", err)
		}
	}, nil
}
