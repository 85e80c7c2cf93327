package dex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Credentials authenticate requests to the aggregator.
type Credentials struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	SecretKey  string `yaml:"secret_key" mapstructure:"secret_key"`
	Passphrase string `yaml:"passphrase" mapstructure:"passphrase"`
	ProjectID  string `yaml:"project_id" mapstructure:"project_id"`
}

const (
	headerKey        = "OK-ACCESS-KEY"
	headerSign       = "OK-ACCESS-SIGN"
	headerTimestamp  = "OK-ACCESS-TIMESTAMP"
	headerPassphrase = "OK-ACCESS-PASSPHRASE"
	headerProject    = "OK-ACCESS-PROJECT"

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Sign returns base64(HMAC-SHA256(secret, timestamp+method+requestPath+body)).
// requestPath includes the encoded query string.
func Sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c Credentials) headers(now time.Time, method, requestPath, body string) map[string]string {
	ts := now.UTC().Format(timestampLayout)
	h := map[string]string{
		headerKey:        c.APIKey,
		headerSign:       Sign(c.SecretKey, ts, method, requestPath, body),
		headerTimestamp:  ts,
		headerPassphrase: c.Passphrase,
	}
	if c.ProjectID != "" {
		h[headerProject] = c.ProjectID
	}
	return h
}
