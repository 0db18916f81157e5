// Package main defines the beamgate signaling server. The server pairs
// browser peers that want to exchange a file directly over WebRTC: it stores
// sealed transfer metadata, brokers room membership, and relays session
// descriptions and ICE candidates between the two sides of a transfer.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/beamgate/beamgate/shared/cmd"
	"github.com/beamgate/beamgate/shared/logutil"
	"github.com/beamgate/beamgate/shared/version"
	"github.com/beamgate/beamgate/signal-server/flags"
	"github.com/beamgate/beamgate/signal-server/node"
	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

func startNode(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	signalNode, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	signalNode.Start()
	return nil
}

var appFlags = []cli.Flag{
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.ClearDB,
	cmd.ForceClearDB,
	cmd.DisableMonitoringFlag,
	cmd.MonitoringHostFlag,
	flags.MonitoringPortFlag,
	cmd.EnableBackupWebhookFlag,
	cmd.BackupWebhookOutputDir,
	cmd.LogFileName,
	cmd.LogFormat,
	cmd.ConfigFileFlag,
	flags.HostFlag,
	flags.PortFlag,
	flags.ClientOriginFlag,
	flags.EnvironmentFlag,
	flags.MetadataEncryptionKeyFlag,
	flags.TurnServerFlag,
	flags.TurnSecretFlag,
	flags.TurnsEnabledFlag,
}

func init() {
	appFlags = cmd.WrapFlags(appFlags)
}

func main() {
	app := cli.App{}
	app.Name = "beamgate"
	app.Usage = `launches a signaling server that pairs browsers for direct WebRTC file transfers.`
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startNode
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(cmd.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					cmd.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as Gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logutil.ConfigurePersistentLogging(logFileName, format); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
