package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultAccount is used when no account name is given.
	DefaultAccount = "default"

	appDir = "inboxdigest"

	// Environment variables consulted by OAuthConfig when no credentials
	// file is given.
	EnvClientID     = "INBOXDIGEST_GOOGLE_CLIENT_ID"
	EnvClientSecret = "INBOXDIGEST_GOOGLE_CLIENT_SECRET"

	oobRedirect = "urn:ietf:wg:oauth:2.0:oob"
)

// ErrNoToken is returned when no token has been stored for an account.
var ErrNoToken = errors.New("no Google OAuth token found")

var accountNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name must not be empty")
	}
	if !accountNameRE.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// OAuthConfig builds the OAuth2 client configuration. A non-empty
// credentialsFile is read as a Google client_secret.json; otherwise the
// client ID and secret come from the environment.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials %s: %w", credentialsFile, err)
		}
		cfg, err := google.ConfigFromJSON(data, DefaultOAuthScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		return cfg, nil
	}

	id, secret := os.Getenv(EnvClientID), os.Getenv(EnvClientSecret)
	if id == "" || secret == "" {
		return nil, fmt.Errorf("google OAuth client not configured: pass a credentials file or set %s and %s", EnvClientID, EnvClientSecret)
	}
	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		Endpoint:     google.Endpoint,
		RedirectURL:  oobRedirect,
		Scopes:       DefaultOAuthScopes,
	}, nil
}

// GetAuthURL returns the consent URL the user opens to obtain a code.
func GetAuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExtractCode accepts either a bare authorization code or the full redirect
// URL the browser landed on.
func ExtractCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect URL: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in redirect URL")
	}
	return code, nil
}

// SaveTokenForAccount exchanges an authorization code and stores the token.
func SaveTokenForAccount(ctx context.Context, cfg *oauth2.Config, account, code string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return writeToken(getTokenFilePath(account), tok)
}

// HasTokenForAccount reports whether a token file exists for account.
func HasTokenForAccount(account string) bool {
	if validateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(getTokenFilePath(account))
	return err == nil
}

// GetTokenSourceForAccount returns a token source for the stored token.
// Refreshed tokens are persisted.
func GetTokenSourceForAccount(ctx context.Context, cfg *oauth2.Config, account string) (oauth2.TokenSource, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}
	path := getTokenFilePath(account)
	tok, err := readToken(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for account %s", ErrNoToken, account)
		}
		return nil, err
	}
	return newPersistingTokenSource(cfg.TokenSource(ctx, tok), tok, path), nil
}

// GetHTTPClientForAccount returns an HTTP client authorized for account.
func GetHTTPClientForAccount(ctx context.Context, cfg *oauth2.Config, account string) (*http.Client, error) {
	ts, err := GetTokenSourceForAccount(ctx, cfg, account)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// GetAuthenticationErrorMessage tells the user how to authorize account.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("No Google OAuth token found for account %q. Run 'inboxdigest auth --account %s' to complete the OAuth flow.", account, account)
}

func getTokenFilePath(account string) string {
	return filepath.Join(cacheDir(), "google-"+account+".token")
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDir)
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tmp, path)
}
