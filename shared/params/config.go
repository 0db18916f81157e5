// Package params defines the tunable constants that govern the signaling
// fabric: abuse thresholds, rate-limit windows, session lifetimes, and
// cleanup cadence. Values are process-wide and read-mostly; tests may
// override them through OverrideSignalConfig.
package params

import "time"

// SignalConfig contains the constants used by the signal-server services.
type SignalConfig struct {
	// Session lifecycle.
	SessionMaxAge   time.Duration // SessionMaxAge is the age past which any session is purged regardless of status.
	MaxFileSize     int64         // MaxFileSize is the largest accepted file size in bytes.
	MaxFileNameLen  int           // MaxFileNameLen is the byte cap applied after sanitization.
	MaxMimeTypeLen  int           // MaxMimeTypeLen is the byte cap applied to MIME types.
	OneTimeCodeLen  int           // OneTimeCodeLen is the length of minted access codes.
	CodeAlphabet    string        // CodeAlphabet is the exact symbol set for access codes; excludes I, O, 0 and 1.

	// Connection throttling.
	ConnectionWindow    time.Duration // ConnectionWindow is the per-IP connection counting window.
	ConnectionLimit     int           // ConnectionLimit is the max connections per IP within ConnectionWindow.
	UploadInitWindow    time.Duration // UploadInitWindow is the per-endpoint upload-init counting window.
	UploadInitLimit     int           // UploadInitLimit is the max upload-inits per endpoint within UploadInitWindow.
	JoinRoomWindow      time.Duration // JoinRoomWindow is the per-endpoint join-room counting window.
	JoinRoomLimit       int           // JoinRoomLimit is the max join attempts per endpoint within JoinRoomWindow.
	SocketEventCapacity int64         // SocketEventCapacity is the burst capacity of the per-socket event throttle.
	SocketEventRate     int64         // SocketEventRate is the sustained events-per-second refill of the socket throttle.

	// Abuse guard.
	AbuseWindow        time.Duration // AbuseWindow is the rolling window for per-IP connection counting.
	AbuseSoftLimit     int           // AbuseSoftLimit rejects individual connections above this count.
	AbuseHardLimit     int           // AbuseHardLimit blocks the IP outright above this count.
	BlockDuration      time.Duration // BlockDuration is how long a hard-blocked IP stays blocked.
	SuspicionThreshold int           // SuspicionThreshold is the suspicious-event count that raises an elevated alert.

	// Concurrency caps.
	MaxActiveSessionsPerIP int           // MaxActiveSessionsPerIP caps concurrently live sessions per IP.
	MaxHourlySessionsPerIP int           // MaxHourlySessionsPerIP caps sessions created per IP per rolling hour.
	SessionCapWindow       time.Duration // SessionCapWindow is the rolling window for the hourly ceiling.

	// Cleanup cadence.
	SweepInterval      time.Duration // SweepInterval is the cadence of the full sweep.
	GuardSweepInterval time.Duration // GuardSweepInterval is the cadence of the abuse-guard-only sweep.
	LimiterSweep       time.Duration // LimiterSweep is the cadence of expired-bucket eviction inside limiters.
	AuditRetention     time.Duration // AuditRetention is how long audit entries are kept.
	AuditCapacity      int           // AuditCapacity bounds the in-memory audit ring.

	// Relay credentials.
	RelayCredentialTTL time.Duration // RelayCredentialTTL is the lifetime of minted TURN credentials.
	RelayUserTag       string        // RelayUserTag is the fixed suffix of minted TURN usernames.

	// Shutdown.
	ShutdownGracePeriod time.Duration // ShutdownGracePeriod is the forced-exit deadline after a stop signal.
}

var defaultSignalConfig = &SignalConfig{
	SessionMaxAge:  24 * time.Hour,
	MaxFileSize:    100 << 30,
	MaxFileNameLen: 255,
	MaxMimeTypeLen: 100,
	OneTimeCodeLen: 6,
	CodeAlphabet:   "ABCDEFGHJKLMNPQRSTUVWXYZ23456789",

	ConnectionWindow:    time.Minute,
	ConnectionLimit:     10,
	UploadInitWindow:    5 * time.Minute,
	UploadInitLimit:     5,
	JoinRoomWindow:      time.Minute,
	JoinRoomLimit:       20,
	SocketEventCapacity: 40,
	SocketEventRate:     20,

	AbuseWindow:        time.Minute,
	AbuseSoftLimit:     10,
	AbuseHardLimit:     50,
	BlockDuration:      15 * time.Minute,
	SuspicionThreshold: 5,

	MaxActiveSessionsPerIP: 10,
	MaxHourlySessionsPerIP: 20,
	SessionCapWindow:       time.Hour,

	SweepInterval:      time.Hour,
	GuardSweepInterval: 5 * time.Minute,
	LimiterSweep:       time.Minute,
	AuditRetention:     7 * 24 * time.Hour,
	AuditCapacity:      10000,

	RelayCredentialTTL: 24 * time.Hour,
	RelayUserTag:       "beamgate",

	ShutdownGracePeriod: 10 * time.Second,
}

var signalConfig = defaultSignalConfig

// Config retrieves the active signaling configuration.
func Config() *SignalConfig {
	return signalConfig
}

// OverrideSignalConfig replaces the config. The preferred pattern is to call
// Config(), copy it, change the specific parameters, and then call
// OverrideSignalConfig(c). Any subsequent call to params.Config() returns
// the overridden copy.
func OverrideSignalConfig(c *SignalConfig) {
	signalConfig = c
}

// UseDefaultConfig resets the config to the built-in defaults.
func UseDefaultConfig() {
	signalConfig = defaultSignalConfig
}

// Copy returns a deep copy of the config, safe to mutate in tests.
func (c *SignalConfig) Copy() *SignalConfig {
	config := *c
	return &config
}
