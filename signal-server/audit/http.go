package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "audit")

// Query parameter bounds for the read endpoint.
const (
	defaultQuerySize = 100
	maxQuerySize     = 1000
)

// QueryHandler serves recent audit entries as JSON. Supported parameters:
// level (INFO, WARN, ERROR, SECURITY), n (entry count, default 100), and
// since (RFC 3339, SECURITY level only). The handler is meant for the
// operator-facing monitoring mux, never the public gateway.
func QueryHandler(l *Log) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		n := defaultQuerySize
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = parsed
		}
		if n > maxQuerySize {
			n = maxQuerySize
		}

		var entries []Entry
		level := Level(strings.ToUpper(r.URL.Query().Get("level")))
		since := r.URL.Query().Get("since")
		switch {
		case level == Security && since != "":
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				http.Error(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
				return
			}
			entries = l.SecuritySince(t)
			if len(entries) > n {
				entries = entries[:n]
			}
		case level != "":
			switch level {
			case Info, Warn, Error, Security:
			default:
				http.Error(w, "unknown level", http.StatusBadRequest)
				return
			}
			entries = l.LastByLevel(level, n)
		default:
			entries = l.Last(n)
		}

		if entries == nil {
			entries = []Entry{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			log.WithError(err).Error("Could not write audit response")
		}
	}
}
