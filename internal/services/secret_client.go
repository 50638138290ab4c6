package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SecretStoreClient talks to the internal secret-store service over its
// HTTP API. It implements signing.SecretSource.
type SecretStoreClient struct {
	baseURL    string
	secretName string
	httpClient *http.Client
	log        *zap.Logger
}

func NewSecretStoreClient(baseURL, secretName string, log *zap.Logger) *SecretStoreClient {
	return &SecretStoreClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretName: secretName,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type secretResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FetchSigningSecret retrieves the signing secret. Failures are
// infrastructure errors: the caller cannot sign without the secret and
// must surface them for redelivery, never swallow them.
func (c *SecretStoreClient) FetchSigningSecret(ctx context.Context) ([]byte, error) {
	u := fmt.Sprintf("%s/v1/secrets/%s", c.baseURL, url.PathEscape(c.secretName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "secret store fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &TransientError{
			Op:  "secret store fetch",
			Err: fmt.Errorf("secret store returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var sr secretResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, &TransientError{Op: "secret store decode", Err: err}
	}
	if sr.Value == "" {
		return nil, &TransientError{
			Op:  "secret store fetch",
			Err: fmt.Errorf("secret %q has empty value", c.secretName),
		}
	}

	c.log.Info("signing secret fetched", zap.String("name", c.secretName))
	return []byte(sr.Value), nil
}
