package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are requested by the auth flow. gmail.modify covers
// reading metadata, label changes, label creation and trashing.
var DefaultOAuthScopes = []string{
	gmail.GmailModifyScope,
}
