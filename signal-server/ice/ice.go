// Package ice mints the time-limited relay credentials and assembles the
// connectivity-establishment server list handed to browsers. Credentials
// follow the TURN REST convention: the username carries its own expiry and
// the password is an HMAC over it, so the relay can verify both without a
// user database.
package ice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/beamgate/beamgate/shared/params"
	"github.com/beamgate/beamgate/shared/timeutils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "ice")

// publicSTUN is always advertised so direct connections work with no relay
// configured at all.
const publicSTUN = "stun:stun.l.google.com:19302"

// ErrNoSecret indicates credential minting was attempted without a shared
// relay secret.
var ErrNoSecret = errors.New("no relay secret configured")

// Server is one entry in the shape browsers accept for their peer
// connection configuration.
type Server struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// Minter builds server lists for a deployment's relay configuration.
type Minter struct {
	turnServer string
	secret     string
	tlsEnabled bool
	now        func() time.Time
}

// NewMinter configures a minter. An empty server or secret disables the
// relay entries; tlsEnabled additionally advertises the TLS transport.
func NewMinter(turnServer, secret string, tlsEnabled bool) *Minter {
	return &Minter{
		turnServer: turnServer,
		secret:     secret,
		tlsEnabled: tlsEnabled,
		now:        timeutils.Now,
	}
}

// Credentials mints a username/credential pair valid for the configured
// TTL: username "<unix-expiry>:<tag>", credential base64(HMAC-SHA1(secret,
// username)).
func (m *Minter) Credentials() (string, string, error) {
	if m.secret == "" {
		return "", "", ErrNoSecret
	}
	cfg := params.Config()
	expiry := m.now().Add(cfg.RelayCredentialTTL).Unix()
	username := strconv.FormatInt(expiry, 10) + ":" + cfg.RelayUserTag
	mac := hmac.New(sha1.New, []byte(m.secret))
	if _, err := mac.Write([]byte(username)); err != nil {
		return "", "", errors.Wrap(err, "could not derive relay credential")
	}
	return username, base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Servers assembles the advertised list: the public STUN entry always, the
// relay's own STUN plus a UDP and TCP TURN pair when configured, and a TLS
// TURN entry when enabled. Minting trouble degrades the answer to STUN
// only; the endpoint never refuses.
func (m *Minter) Servers() []Server {
	servers := []Server{{URLs: publicSTUN}}
	if m.turnServer == "" || m.secret == "" {
		return servers
	}
	username, credential, err := m.Credentials()
	if err != nil {
		log.WithError(err).Error("Could not mint relay credentials, answering with STUN only")
		return servers
	}
	servers = append(servers,
		Server{URLs: "stun:" + m.turnServer},
		Server{URLs: "turn:" + m.turnServer + "?transport=udp", Username: username, Credential: credential},
		Server{URLs: "turn:" + m.turnServer + "?transport=tcp", Username: username, Credential: credential},
	)
	if m.tlsEnabled {
		servers = append(servers, Server{URLs: "turns:" + m.turnServer + "?transport=tcp", Username: username, Credential: credential})
	}
	return servers
}
