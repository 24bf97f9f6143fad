package apichannel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	"github.com/smallbiznis/payrun/internal/channel/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Kind() bankprofiledomain.ChannelKind {
	return bankprofiledomain.ChannelKindAPI
}

func (f *Factory) NewChannel(cfg domain.Config) (domain.Channel, error) {
	baseURL, ok := readString(cfg.Config, "base_url")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, domain.ErrInvalidConfig
	}
	credentialRef, ok := readString(cfg.Config, "credential_ref")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Channel{
		baseURL: strings.TrimRight(baseURL, "/"),
		// credential_ref names the environment variable carrying the token,
		// so secrets never land in the profile row.
		token:  os.Getenv(credentialRef),
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Channel talks to an HTTP file-exchange endpoint exposed by the bank:
// PUT /files/{name} uploads an instruction file, GET /files/pending lists
// acknowledgment documents waiting for collection.
type Channel struct {
	baseURL string
	token   string
	client  *http.Client
}

type pendingResponse struct {
	Documents []pendingDocument `json:"documents"`
}

type pendingDocument struct {
	Filename string `json:"filename"`
	Payload  []byte `json:"payload"`
}

func (c *Channel) Deliver(ctx context.Context, filename string, payload []byte) error {
	endpoint := c.baseURL + "/files/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelIO, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: deliver %s: %v", domain.ErrChannelIO, filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: deliver %s: status %d", domain.ErrChannelIO, filename, resp.StatusCode)
	}
	return nil
}

func (c *Channel) ListPending(ctx context.Context, max int) ([]domain.Document, error) {
	endpoint := c.baseURL + "/files/pending"
	if max > 0 {
		endpoint += "?limit=" + strconv.Itoa(max)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelIO, err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending: %v", domain.ErrChannelIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: list pending: status %d", domain.ErrChannelIO, resp.StatusCode)
	}

	var parsed pendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode pending: %v", domain.ErrChannelIO, err)
	}

	docs := make([]domain.Document, 0, len(parsed.Documents))
	for _, doc := range parsed.Documents {
		if strings.TrimSpace(doc.Filename) == "" {
			continue
		}
		docs = append(docs, domain.Document{Filename: doc.Filename, Payload: doc.Payload})
	}
	if max > 0 && len(docs) > max {
		docs = docs[:max]
	}
	return docs, nil
}

func (c *Channel) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	cast, ok := value.(string)
	if !ok || strings.TrimSpace(cast) == "" {
		return "", false
	}
	return strings.TrimSpace(cast), true
}
