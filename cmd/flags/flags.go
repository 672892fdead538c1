// Package flags holds the CLI flags shared by provisioning commands and the
// logger setup built from them.
package flags

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/attestify/keybox-provisioner/common"
	"github.com/attestify/keybox-provisioner/keybox"
	"github.com/attestify/keybox-provisioner/securestore"
)

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

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
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

var StoreFlag = &cli.StringFlag{
	Name:  "store",
	Value: "file:///var/lib/keybox-provisioner",
	Usage: "record store URI: memory://, file://PATH, vault://HOST/MOUNT/PREFIX, s3://BUCKET/PREFIX",
}

var SealSecretHexFlag = &cli.StringFlag{
	Name:  "seal-secret-hex",
	Value: "",
	Usage: "hex-encoded device secret; when set, records are sealed with a key derived from it",
}

var MaxChainLengthFlag = &cli.UintFlag{
	Name:  "max-chain-length",
	Value: securestore.DefaultMaxCertChainLength,
	Usage: "certificate chain capacity per key slot",
}

var MaxKeyboxSizeFlag = &cli.IntFlag{
	Name:  "max-keybox-size",
	Value: keybox.DefaultMaxKeyboxSize,
	Usage: "maximum decoded keybox size in bytes",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	StoreFlag,
	SealSecretHexFlag,
	MaxChainLengthFlag,
}
