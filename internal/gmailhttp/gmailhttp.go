/*
Package gmailhttp implements an authenticated HTTP client for GMail.

Credentials follow the installed-application OAuth 2.0 flow: a client
secret file (credentials.json by default) identifies the application,
and a cached token file (token.json) holds the user grant. When no
cached token exists the user is sent to a consent URL and pastes the
authorization code back on stdin; the resulting token is cached for
subsequent runs. Refresh on expiry is handled by golang.org/x/oauth2.
*/
package gmailhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/vikrantb/gmailarchiver/internal/gmail"
)

// New returns an HTTP client authorized for the GMail API, using the
// client secret at credentialsPath and the token cache at tokenPath.
func New(ctx context.Context, credentialsPath, tokenPath string) (*http.Client, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading client secret file %q", credentialsPath)
	}
	conf, err := google.ConfigFromJSON(b, gmail.Scope)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing client secret file %q", credentialsPath)
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		tok, err = tokenFromWeb(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenPath, tok); err != nil {
			return nil, err
		}
	}
	return conf.Client(ctx, tok), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, errors.Wrapf(err, "decoding cached token %q", path)
	}
	return tok, nil
}

func tokenFromWeb(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	url := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Visit the following URL, authorize the application, then paste the code here:\n%v\n> ", url)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, errors.Wrap(err, "reading authorization code")
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchanging authorization code")
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "creating token cache %q", path)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return errors.Wrapf(err, "writing token cache %q", path)
	}
	return nil
}
