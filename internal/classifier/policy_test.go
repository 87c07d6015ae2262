package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr string
	}{
		{
			name:    "overlap",
			policy:  Policy{Paid: []string{"deal"}, Promotional: []string{"Deal"}},
			wantErr: `keyword "deal" appears in both paid and promotional`,
		},
		{
			name:    "blank keyword",
			policy:  Policy{Free: []string{" "}},
			wantErr: "free: empty keyword",
		},
		{
			name:   "duplicate within a set",
			policy: Policy{Free: []string{"trial", "trial"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paid:\n  - statement\n"), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"statement"}, p.Paid)
	assert.Equal(t, DefaultPolicy().Free, p.Free)
	assert.Equal(t, DefaultPolicy().Promotional, p.Promotional)
}

func TestParsePolicyRejectsUnknownFields(t *testing.T) {
	_, err := ParsePolicy([]byte("spam:\n  - x\n"))
	assert.Error(t, err)
}

func TestParsePolicyRejectsOverlap(t *testing.T) {
	_, err := ParsePolicy([]byte("free:\n  - invoice\n"))
	assert.Error(t, err)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
