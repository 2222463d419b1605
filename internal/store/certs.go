package store

import (
	"os"
	"path/filepath"

	"github.com/makapix/agent-core/internal/corerrors"
)

// PutCerts writes the three PEM objects as flat files. Not atomic across
// the three writes (spec §4.1): a crash between writes leaves a partial
// set, which GetCerts/HasCerts report as absent, never as corrupt.
func (s *Store) PutCerts(c Certs) error {
	if len(c.CA) == 0 || len(c.Cert) == 0 || len(c.Key) == 0 {
		return corerrors.Mark(corerrors.New("ca, cert, and key must all be non-empty"), corerrors.ErrInvalidArg)
	}
	if err := s.writeCertFile(certCAName, c.CA); err != nil {
		return err
	}
	if err := s.writeCertFile(certCertName, c.Cert); err != nil {
		return err
	}
	return s.writeCertFile(certKeyName, c.Key)
}

func (s *Store) writeCertFile(name string, data []byte) error {
	path := filepath.Join(s.certsDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return corerrors.Mark(corerrors.Wrapf(err, "writing %s", name), corerrors.ErrIOError)
	}
	return nil
}

func (s *Store) readCertFile(name string) ([]byte, error) {
	path := filepath.Join(s.certsDir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, corerrors.ErrNotFound
	}
	if err != nil {
		return nil, corerrors.Mark(corerrors.Wrapf(err, "reading %s", name), corerrors.ErrIOError)
	}
	if len(data) == 0 {
		return nil, corerrors.ErrTruncated
	}
	return data, nil
}

// GetCerts reads back all three PEM objects. Per spec §4.1, callers that
// intend to load into memory must treat ErrTruncated the same as
// ErrNotFound; HasCerts already performs that collapse.
func (s *Store) GetCerts() (Certs, error) {
	ca, err := s.readCertFile(certCAName)
	if err != nil {
		return Certs{}, err
	}
	cert, err := s.readCertFile(certCertName)
	if err != nil {
		return Certs{}, err
	}
	key, err := s.readCertFile(certKeyName)
	if err != nil {
		return Certs{}, err
	}
	return Certs{CA: ca, Cert: cert, Key: key}, nil
}

// HasCerts reports "all three objects present and readable" (spec §4.1),
// collapsing both not_found and truncated to false per the resolved Open
// Question (DESIGN.md, Open Question 2).
func (s *Store) HasCerts() bool {
	_, err := s.GetCerts()
	return err == nil
}

func (s *Store) clearCerts() error {
	for _, name := range []string{certCAName, certCertName, certKeyName} {
		path := filepath.Join(s.certsDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return corerrors.Mark(corerrors.Wrapf(err, "removing %s", name), corerrors.ErrIOError)
		}
	}
	return nil
}
