package flags

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/credential-registry-backend/api"
	"github.com/ruteri/credential-registry-backend/common"
	"github.com/ruteri/credential-registry-backend/issuance"
	"github.com/ruteri/credential-registry-backend/kms"
	"github.com/ruteri/credential-registry-backend/verifier"
	"github.com/urfave/cli/v2"
)

func envVar(name string) []string {
	return []string{"CREDREG_" + name}
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DefaultIssuerID:          cCtx.String(DefaultIssuerFlag.Name),
		MaxUploadSize:            cCtx.Int64(MaxUploadMBFlag.Name) << 20,
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		// Issuance waits for mining.
		WriteTimeout: cCtx.Duration(RegistryTimeoutFlag.Name) + 30*time.Second,
	}
}

func ConfigureIssuance(cCtx *cli.Context) (issuance.Config, error) {
	cfg := issuance.DefaultConfig()
	cfg.Threshold = cCtx.Int(ThresholdFlag.Name)
	cfg.TotalShares = cCtx.Int(TotalSharesFlag.Name)
	cfg.MinSealedShares = cCtx.Int(MinSealedFlag.Name)
	cfg.StorageTimeout = cCtx.Duration(StorageTimeoutFlag.Name)
	cfg.RegistryTimeout = cCtx.Duration(RegistryTimeoutFlag.Name)
	cfg.PersistTimeout = cCtx.Duration(PersistTimeoutFlag.Name)
	cfg.RegistryRetry.MaxRetries = cCtx.Uint64(RegistryRetriesFlag.Name)

	if err := cfg.Validate(); err != nil {
		return issuance.Config{}, fmt.Errorf("invalid issuance configuration: %w", err)
	}
	return cfg, nil
}

func ConfigureVerifier(cCtx *cli.Context) verifier.Config {
	cfg := verifier.DefaultConfig()
	cfg.LookupTimeout = cCtx.Duration(LookupTimeoutFlag.Name)
	return cfg
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: envVar("LISTEN_ADDR"),
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	Usage:   "credential server base URL",
	EnvVars: envVar("SERVER"),
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Value:   "http://127.0.0.1:8545",
	Usage:   "address to connect to RPC",
	EnvVars: envVar("RPC_ADDR"),
}

var RegistryContractFlag = &cli.StringFlag{
	Name:    "registry-contract",
	Usage:   "credential registry contract address (0x-prefixed). Empty runs an in-memory registry for development",
	EnvVars: envVar("REGISTRY_CONTRACT"),
}

var IssuerKeyFlag = &cli.StringFlag{
	Name:    "issuer-key",
	Usage:   "hex-encoded secp256k1 private key used to sign registry transactions",
	EnvVars: envVar("ISSUER_KEY"),
}

var StorageFlag = &cli.StringSliceFlag{
	Name:    "storage",
	Value:   cli.NewStringSlice("file://./data/storage"),
	Usage:   "storage backend URI, repeatable: file://dir, s3://[key:secret@]bucket/prefix?region=, ipfs://host:port, vault://[token@]host:port/mount/path",
	EnvVars: envVar("STORAGE"),
}

var RecordsDirFlag = &cli.StringFlag{
	Name:    "records-dir",
	Usage:   "badger directory for issuance records. Empty keeps records in memory",
	EnvVars: envVar("RECORDS_DIR"),
}

var CustodiansFileFlag = &cli.StringFlag{
	Name:     "custodians-file",
	Required: true,
	Usage:    "JSON file listing custodians: [{id,name,publicKey,endpoint}]",
	EnvVars:  envVar("CUSTODIANS_FILE"),
}

var DefaultIssuerFlag = &cli.StringFlag{
	Name:    "default-issuer",
	Value:   "registrar",
	Usage:   "issuer id recorded when a request carries no X-Issuer-ID header",
	EnvVars: envVar("DEFAULT_ISSUER"),
}

var MaxUploadMBFlag = &cli.Int64Flag{
	Name:    "max-upload-mb",
	Value:   10,
	Usage:   "maximum credential file size in MiB",
	EnvVars: envVar("MAX_UPLOAD_MB"),
}

var ThresholdFlag = &cli.IntFlag{
	Name:    "threshold",
	Value:   kms.DefaultThreshold,
	Usage:   "custodian shares required to recover a credential key",
	EnvVars: envVar("THRESHOLD"),
}

var TotalSharesFlag = &cli.IntFlag{
	Name:    "total-shares",
	Value:   kms.DefaultTotalShares,
	Usage:   "custodians each credential key is split among",
	EnvVars: envVar("TOTAL_SHARES"),
}

var MinSealedFlag = &cli.IntFlag{
	Name:    "min-sealed-shares",
	Usage:   "fewest sealed shares an issuance may publish with (default: threshold)",
	EnvVars: envVar("MIN_SEALED_SHARES"),
}

var StorageTimeoutFlag = &cli.DurationFlag{
	Name:    "storage-timeout",
	Value:   30 * time.Second,
	Usage:   "timeout for one object storage upload",
	EnvVars: envVar("STORAGE_TIMEOUT"),
}

var RegistryTimeoutFlag = &cli.DurationFlag{
	Name:    "registry-timeout",
	Value:   2 * time.Minute,
	Usage:   "timeout for one registry write, including mining",
	EnvVars: envVar("REGISTRY_TIMEOUT"),
}

var PersistTimeoutFlag = &cli.DurationFlag{
	Name:    "persist-timeout",
	Value:   30 * time.Second,
	Usage:   "timeout for saving the issuance record and recovery bundle",
	EnvVars: envVar("PERSIST_TIMEOUT"),
}

var RegistryRetriesFlag = &cli.Uint64Flag{
	Name:    "registry-retries",
	Value:   3,
	Usage:   "retries for registry writes that were not sent",
	EnvVars: envVar("REGISTRY_RETRIES"),
}

var LookupTimeoutFlag = &cli.DurationFlag{
	Name:    "lookup-timeout",
	Value:   10 * time.Second,
	Usage:   "timeout for one registry lookup",
	EnvVars: envVar("LOOKUP_TIMEOUT"),
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: envVar("LOG_JSON"),
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: envVar("LOG_DEBUG"),
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: envVar("METRICS_ADDR"),
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
