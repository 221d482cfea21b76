package vertex

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"github.com/sitechat/relay/internal/config"
	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
)

// tokenTimeout bounds the token endpoint round trip.
const tokenTimeout = 10 * time.Second

// Credentials exchanges a signed service-account assertion for a bearer
// token. Tokens are cached and reused until shortly before expiry.
type Credentials struct {
	ts  oauth2.TokenSource
	log *logging.Logger
}

// NewCredentials builds a token source from the configured service account.
func NewCredentials(cfg config.GoogleConfig, log *logging.Logger) *Credentials {
	jc := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Subject:    cfg.ClientEmail,
		Scopes:     []string{cfg.Scope},
		TokenURL:   cfg.TokenURL,
		Expires:    time.Hour,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient,
		&http.Client{Timeout: tokenTimeout})
	return &Credentials{
		ts:  oauth2.ReuseTokenSource(nil, jc.TokenSource(ctx)),
		log: log.Sub("credentials"),
	}
}

// Token returns a valid bearer token, fetching a fresh one when the cached
// token has expired.
func (c *Credentials) Token() (string, error) {
	tok, err := c.ts.Token()
	if err != nil {
		c.log.Error().Err(err).Msg("token exchange failed")
		relErr := domain.Errf(domain.KindAuth, err, "Authentication failed")
		relErr.Timeout = isTimeout(err)
		return "", relErr
	}
	if tok.AccessToken == "" {
		return "", domain.Errf(domain.KindAuth, nil, "Authentication failed")
	}
	return tok.AccessToken, nil
}

// isTimeout reports whether err is a deadline of any flavor.
func isTimeout(err error) bool {
	if os.IsTimeout(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
