package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "certs"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIdentityRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.False(t, s.HasPlayerKey())

	id := Identity{PlayerKey: "abc123", Host: "mqtt.example.com", Port: 8883}
	require.NoError(t, s.PutIdentity(id))

	require.True(t, s.HasPlayerKey())
	got, err := s.GetIdentity()
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestCertsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.False(t, s.HasCerts())

	c := Certs{CA: []byte("ca-pem"), Cert: []byte("cert-pem"), Key: []byte("key-pem")}
	require.NoError(t, s.PutCerts(c))

	require.True(t, s.HasCerts())
	got, err := s.GetCerts()
	require.NoError(t, err)
	require.Equal(t, c, got)
}

func TestCertsTruncatedTreatedAsAbsent(t *testing.T) {
	s := openTestStore(t)

	c := Certs{CA: []byte("ca-pem"), Cert: []byte("cert-pem"), Key: []byte("key-pem")}
	require.NoError(t, s.PutCerts(c))

	// Simulate a crash mid-write by truncating the cert file to empty.
	require.NoError(t, s.writeCertFile(certCertName, []byte{}))

	require.False(t, s.HasCerts())
	_, err := s.GetCerts()
	require.Error(t, err)
}

func TestClearErasesBothPartitions(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutIdentity(Identity{PlayerKey: "abc123", Host: "h", Port: 1}))
	require.NoError(t, s.PutCerts(Certs{CA: []byte("a"), Cert: []byte("b"), Key: []byte("c")}))

	require.NoError(t, s.Clear())

	require.False(t, s.HasPlayerKey())
	require.False(t, s.HasCerts())
}

func TestInvalidIdentityRejected(t *testing.T) {
	s := openTestStore(t)

	err := s.PutIdentity(Identity{PlayerKey: "", Host: "h", Port: 1})
	require.Error(t, err)
}
