package store

import (
	"strconv"

	"github.com/makapix/agent-core/internal/corerrors"
)

const (
	keyPlayerKey = "player_key"
	keyHost      = "mqtt_host"
	keyPort      = "mqtt_port"
)

// PutIdentity writes the enrollment identity and broker address. Not
// transactional across the three keys by design (spec §4.1): player_key is
// written first, so a write cut short after it leaves HasPlayerKey() true
// while GetIdentity returns an empty host and a zero port.
func (s *Store) PutIdentity(id Identity) error {
	if id.PlayerKey == "" || len(id.PlayerKey) > 36 {
		return corerrors.Mark(corerrors.Newf("player_key must be 1-36 bytes, got %d", len(id.PlayerKey)), corerrors.ErrInvalidArg)
	}
	if len(id.Host) > 63 {
		return corerrors.Mark(corerrors.Newf("host must be <=63 bytes, got %d", len(id.Host)), corerrors.ErrInvalidArg)
	}
	if err := s.putKV(keyPlayerKey, id.PlayerKey); err != nil {
		return err
	}
	if err := s.putKV(keyHost, id.Host); err != nil {
		return err
	}
	return s.putKV(keyPort, strconv.Itoa(int(id.Port)))
}

// GetIdentity reads back the enrollment identity. Returns ErrNotFound if no
// player_key has ever been written.
func (s *Store) GetIdentity() (Identity, error) {
	key, err := s.getKV(keyPlayerKey)
	if err != nil {
		return Identity{}, err
	}
	host, err := s.getKV(keyHost)
	if err != nil {
		host = ""
	}
	portStr, err := s.getKV(keyPort)
	var port int
	if err == nil {
		port, _ = strconv.Atoi(portStr)
	}
	return Identity{PlayerKey: key, Host: host, Port: uint16(port)}, nil
}

// HasPlayerKey reports whether an enrollment identity has been persisted.
func (s *Store) HasPlayerKey() bool {
	_, err := s.getKV(keyPlayerKey)
	return err == nil
}

// Clear erases both the enrollment identity and the mTLS material,
// implementing the single `clear` operation named in spec §4.1.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE namespace = ?`, kvNamespace); err != nil {
		return corerrors.Mark(corerrors.Wrap(err, "clearing kv partition"), corerrors.ErrIOError)
	}
	return s.clearCerts()
}
