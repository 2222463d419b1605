// Package provisioning implements the Provisioning Client (C2): the
// two-phase enrollment protocol against the cloud service, grounded on
// this codebase's auth.GitHubProvider for the stdlib net/http request
// shape and error-wrapping discipline.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/corerrors"
	"github.com/makapix/agent-core/internal/store"
)

// PhaseAResult is the response to POST /provision (spec §6.1).
type PhaseAResult struct {
	PlayerKey        string
	RegistrationCode string
	ExpiresAt        time.Time
	BrokerHost       string
	BrokerPort       uint16
}

// CredentialsResult is the 200 response to GET /player/{key}/credentials.
type CredentialsResult struct {
	CA         []byte
	Cert       []byte
	Key        []byte
	BrokerHost string // empty if server did not override
	BrokerPort uint16
}

// Client runs Phase A (issue code) and Phase B (poll for credentials)
// against the provisioning HTTP API.
type Client struct {
	baseURL         string
	deviceModel     string
	firmwareVersion string
	httpClient      *http.Client
}

// New constructs a provisioning Client. httpClient may be nil, in which
// case http.DefaultClient is used; tests inject a client pointed at an
// httptest.Server.
func New(baseURL, deviceModel, firmwareVersion string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, deviceModel: deviceModel, firmwareVersion: firmwareVersion, httpClient: httpClient}
}

type phaseARequest struct {
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
}

type phaseAResponse struct {
	PlayerKey        string `json:"player_key"`
	RegistrationCode string `json:"registration_code"`
	ExpiresAt        string `json:"expires_at"`
	BrokerHost       string `json:"broker_host"`
	BrokerPort       int    `json:"broker_port"`
}

// IssueCode runs Phase A: POST device identity, returns the registration
// code and the identity to persist.
func (c *Client) IssueCode(ctx context.Context) (PhaseAResult, error) {
	log := corelog.For("provisioning")

	body, err := json.Marshal(phaseARequest{Model: c.deviceModel, FirmwareVersion: c.firmwareVersion})
	if err != nil {
		return PhaseAResult{}, corerrors.Wrap(err, "encoding phase-A request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/provision", bytes.NewReader(body))
	if err != nil {
		return PhaseAResult{}, corerrors.Wrap(err, "building phase-A request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnw("phase-A request failed", "error", err)
		return PhaseAResult{}, corerrors.Wrap(err, "phase-A request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return PhaseAResult{}, corerrors.Wrap(err, "reading phase-A response")
	}
	if resp.StatusCode != http.StatusOK {
		return PhaseAResult{}, corerrors.Newf("phase-A failed: status %d: %s", resp.StatusCode, string(raw))
	}

	var pr phaseAResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return PhaseAResult{}, corerrors.Wrap(err, "parsing phase-A response")
	}

	expires, err := time.Parse(time.RFC3339, pr.ExpiresAt)
	if err != nil {
		expires = time.Now().Add(15 * time.Minute)
	}

	log.Infow("phase-A issued", "player_key", pr.PlayerKey, "expires_at", expires)
	return PhaseAResult{
		PlayerKey:        pr.PlayerKey,
		RegistrationCode: pr.RegistrationCode,
		ExpiresAt:        expires,
		BrokerHost:       pr.BrokerHost,
		BrokerPort:       uint16(pr.BrokerPort),
	}, nil
}

type credentialsResponse struct {
	CA         string `json:"ca_pem"`
	Cert       string `json:"cert_pem"`
	Key        string `json:"key_pem"`
	BrokerHost string `json:"broker_host"`
	BrokerPort int    `json:"broker_port"`
}

// pollOnce performs a single Phase B GET. Returns (result, ready, err):
// ready is false on a 404 (not yet registered) which is not an error.
func (c *Client) pollOnce(ctx context.Context, playerKey string) (CredentialsResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/player/%s/credentials", c.baseURL, playerKey), nil)
	if err != nil {
		return CredentialsResult{}, false, corerrors.Wrap(err, "building phase-B request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CredentialsResult{}, false, corerrors.Wrap(err, "phase-B request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return CredentialsResult{}, false, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CredentialsResult{}, false, corerrors.Wrap(err, "reading phase-B response")
	}
	if resp.StatusCode != http.StatusOK {
		return CredentialsResult{}, false, corerrors.Newf("phase-B error: status %d: %s", resp.StatusCode, string(raw))
	}

	var cr credentialsResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return CredentialsResult{}, false, corerrors.Wrap(err, "parsing phase-B response")
	}

	return CredentialsResult{
		CA:         []byte(cr.CA),
		Cert:       []byte(cr.Cert),
		Key:        []byte(cr.Key),
		BrokerHost: cr.BrokerHost,
		BrokerPort: uint16(cr.BrokerPort),
	}, true, nil
}

// PollCredentials runs Phase B: poll every interval for up to maxPolls
// attempts, returning as soon as the server reports credentials, the
// cancel function returns true, or the poll cap is reached.
func (c *Client) PollCredentials(ctx context.Context, playerKey string, interval time.Duration, maxPolls int, cancelled func() bool) (CredentialsResult, error) {
	log := corelog.For("provisioning")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxPolls; attempt++ {
		if cancelled() {
			return CredentialsResult{}, corerrors.ErrInvalidState
		}

		result, ready, err := c.pollOnce(ctx, playerKey)
		if err != nil {
			log.Warnw("phase-B poll error, continuing", "error", err, "attempt", attempt)
		} else if ready {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return CredentialsResult{}, corerrors.Wrap(ctx.Err(), "phase-B polling cancelled")
		case <-ticker.C:
		}
	}

	return CredentialsResult{}, corerrors.ErrTimeout
}

// InstallCredentials implements the atomic-semantics credential installation
// protocol of spec §4.2: preserve the prior broker address, clear any
// partial prior state, write certs, pick the broker address by precedence
// response > preserved > buildDefault, then write the identity.
func InstallCredentials(s *store.Store, playerKey string, result CredentialsResult, buildDefaultHost string, buildDefaultPort uint16) error {
	prior, err := s.GetIdentity()
	preservedHost, preservedPort := buildDefaultHost, buildDefaultPort
	if err == nil {
		preservedHost, preservedPort = prior.Host, prior.Port
	}

	if s.HasPlayerKey() || s.HasCerts() {
		if err := s.Clear(); err != nil {
			return corerrors.Wrap(err, "clearing prior partial state before install")
		}
	}

	if err := s.PutCerts(store.Certs{CA: result.CA, Cert: result.Cert, Key: result.Key}); err != nil {
		return corerrors.Wrap(err, "writing mTLS material")
	}

	host, port := preservedHost, preservedPort
	if result.BrokerHost != "" {
		host, port = result.BrokerHost, result.BrokerPort
	}

	return s.PutIdentity(store.Identity{PlayerKey: playerKey, Host: host, Port: port})
}
