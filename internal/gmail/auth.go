package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// Authenticator owns the OAuth2 installed-app flow and the token file that
// caches the granted credentials between runs.
type Authenticator struct {
	credentialsFile string
	tokenFile       string
	logger          *log.Logger
}

// NewAuthenticator builds an authenticator over the given credential and
// token file paths.
func NewAuthenticator(credentialsFile, tokenFile string, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.New(log.Writer(), "[GMAIL-AUTH] ", log.LstdFlags)
	}
	return &Authenticator{
		credentialsFile: credentialsFile,
		tokenFile:       tokenFile,
		logger:          logger,
	}
}

// Client returns an authorized HTTP client, running the interactive
// authorization flow when no stored token exists.
func (a *Authenticator) Client(ctx context.Context) (*http.Client, error) {
	b, err := os.ReadFile(a.credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret file: %w", err)
	}

	tok, err := a.tokenFromFile()
	if err != nil {
		tok, err = a.tokenFromWeb(ctx, oauthConfig)
		if err != nil {
			return nil, err
		}
		if err := a.saveToken(tok); err != nil {
			a.logger.Printf("could not persist oauth token: %v", err)
		}
	}
	return oauthConfig.Client(ctx, tok), nil
}

// ClearStoredToken deletes the cached token so the next Client call runs a
// fresh authorization flow.
func (a *Authenticator) ClearStoredToken() error {
	if err := os.Remove(a.tokenFile); err != nil {
		if os.IsNotExist(err) {
			a.logger.Println("no stored token to clear")
			return nil
		}
		return fmt.Errorf("delete stored token: %w", err)
	}
	a.logger.Println("deleted stored token")
	return nil
}

func (a *Authenticator) tokenFromWeb(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error) {
	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser then type the authorization code:\n%v\n", authURL)

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := oauthConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func (a *Authenticator) tokenFromFile() (*oauth2.Token, error) {
	f, err := os.Open(a.tokenFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (a *Authenticator) saveToken(token *oauth2.Token) error {
	f, err := os.OpenFile(a.tokenFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
