package session

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"

	"github.com/emersion/go-sasl"
)

// cramMD5Client implements the CRAM-MD5 challenge-response mechanism
// (RFC 2195) as a SASL client. The password never crosses the wire: the
// response carries only an HMAC-MD5 digest of the server challenge.
type cramMD5Client struct {
	username string
	password string
}

var _ sasl.Client = (*cramMD5Client)(nil)

// newCRAMMD5Client returns a SASL client for the given credentials.
func newCRAMMD5Client(username, password string) sasl.Client {
	return &cramMD5Client{username: username, password: password}
}

// Start begins the exchange. CRAM-MD5 sends no initial response: the
// server speaks first with its challenge.
func (c *cramMD5Client) Start() (string, []byte, error) {
	return "CRAM-MD5", nil, nil
}

// Next answers the server challenge with
// "username SP hex(HMAC-MD5(password, challenge))".
func (c *cramMD5Client) Next(challenge []byte) ([]byte, error) {
	mac := hmac.New(md5.New, []byte(c.password))
	mac.Write(challenge)
	digest := hex.EncodeToString(mac.Sum(nil))
	return []byte(c.username + " " + digest), nil
}
