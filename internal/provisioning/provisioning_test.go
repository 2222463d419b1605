package provisioning

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/makapix/agent-core/internal/store"
)

func TestIssueCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/provision", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"player_key":        "abc123",
			"registration_code": "A1B2C3",
			"expires_at":        time.Now().Add(15 * time.Minute).Format(time.RFC3339),
			"broker_host":       "mqtt.example.com",
			"broker_port":       8883,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "frame-v1", "1.0.0", srv.Client())
	result, err := c.IssueCode(t.Context())
	require.NoError(t, err)
	require.Equal(t, "abc123", result.PlayerKey)
	require.Equal(t, "A1B2C3", result.RegistrationCode)
	require.Equal(t, "mqtt.example.com", result.BrokerHost)
}

func TestPollCredentialsRetriesOn404ThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ca_pem":   "CA",
			"cert_pem": "CERT",
			"key_pem":  "KEY",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "frame-v1", "1.0.0", srv.Client())
	result, err := c.PollCredentials(t.Context(), "abc123", 5*time.Millisecond, 100, func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, []byte("CA"), result.CA)
	require.GreaterOrEqual(t, calls, 3)
}

func TestPollCredentialsStopsOnCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "frame-v1", "1.0.0", srv.Client())
	_, err := c.PollCredentials(t.Context(), "abc123", 5*time.Millisecond, 1000, func() bool { return true })
	require.Error(t, err)
}

func TestInstallCredentialsPrecedence(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "certs"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutIdentity(store.Identity{PlayerKey: "old", Host: "preserved.example.com", Port: 1883}))

	result := CredentialsResult{CA: []byte("ca"), Cert: []byte("cert"), Key: []byte("key")}
	require.NoError(t, InstallCredentials(s, "new-key", result, "default.example.com", 9999))

	got, err := s.GetIdentity()
	require.NoError(t, err)
	require.Equal(t, "new-key", got.PlayerKey)
	require.Equal(t, "preserved.example.com", got.Host, "preserved host wins over build default when response carries none")
	require.True(t, s.HasCerts())
}
