// Package flags contains all configuration runtime flags for
// the signal server.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// HostFlag defines the address on which the websocket gateway listens.
	HostFlag = &cli.StringFlag{
		Name:  "host",
		Usage: "Host on which the signal server listens for websocket connections",
		Value: "0.0.0.0",
	}
	// PortFlag defines the port on which the websocket gateway listens.
	PortFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "Port on which the signal server listens for websocket connections",
		Value:   4000,
		EnvVars: []string{"PORT"},
	}
	// ClientOriginFlag defines the browser origin allowed to open websocket connections.
	ClientOriginFlag = &cli.StringFlag{
		Name:    "client-origin",
		Usage:   "Browser origin allowed to connect, eg https://beamgate.example.com",
		Value:   "http://localhost:3000",
		EnvVars: []string{"CLIENT_URL"},
	}
	// MetadataEncryptionKeyFlag supplies the key material protecting file metadata at rest.
	MetadataEncryptionKeyFlag = &cli.StringFlag{
		Name:    "metadata-encryption-key",
		Usage:   "Key material used to encrypt file metadata stored in the session database. Required in production.",
		EnvVars: []string{"METADATA_ENCRYPTION_KEY"},
	}
	// TurnServerFlag defines the TURN relay advertised to clients.
	TurnServerFlag = &cli.StringFlag{
		Name:    "turn-server",
		Usage:   "Hostname of the TURN relay advertised to clients, eg turn.beamgate.example.com",
		EnvVars: []string{"TURN_SERVER"},
	}
	// TurnSecretFlag is the shared secret for minting ephemeral TURN credentials.
	TurnSecretFlag = &cli.StringFlag{
		Name:    "turn-secret",
		Usage:   "Shared secret used to mint ephemeral TURN credentials",
		EnvVars: []string{"TURN_SECRET"},
	}
	// TurnsEnabledFlag additionally advertises TLS transport for the TURN relay.
	TurnsEnabledFlag = &cli.BoolFlag{
		Name:    "turns-enabled",
		Usage:   "Additionally advertise the TURN relay over TLS (turns scheme)",
		EnvVars: []string{"TURNS_ENABLED"},
	}
	// EnvironmentFlag distinguishes production from development deployments.
	EnvironmentFlag = &cli.StringFlag{
		Name:    "environment",
		Usage:   "Deployment environment, either development or production",
		Value:   "development",
		EnvVars: []string{"NODE_ENV"},
	}
	// MonitoringPortFlag defines the http port used to serve prometheus metrics.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus.",
		Value: 8081,
	}
)
