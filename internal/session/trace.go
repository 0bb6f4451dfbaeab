package session

import (
	"strings"

	"github.com/rs/zerolog"
)

// protocolTraceWriter forwards raw protocol traffic to the debug log. It
// plugs into imapclient.Options.DebugWriter when verbose diagnostics are
// enabled.
type protocolTraceWriter struct {
	log zerolog.Logger
}

// Write implements io.Writer. LOGIN lines are redacted so plaintext
// credentials never reach the log.
func (w *protocolTraceWriter) Write(p []byte) (int, error) {
	data := strings.TrimSpace(string(p))
	if strings.Contains(strings.ToUpper(data), "LOGIN") {
		w.log.Debug().Str("proto", "[LOGIN command - credentials redacted]").Msg("imap trace")
	} else {
		w.log.Debug().Str("proto", data).Msg("imap trace")
	}
	return len(p), nil
}
