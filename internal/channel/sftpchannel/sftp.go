package sftpchannel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
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
	return bankprofiledomain.ChannelKindSFTP
}

func (f *Factory) NewChannel(cfg domain.Config) (domain.Channel, error) {
	inbound, ok := readString(cfg.Config, "inbound_dir")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}
	outbound, ok := readString(cfg.Config, "outbound_dir")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Channel{
		inboundDir:  inbound,
		outboundDir: outbound,
		timeout:     timeout,
	}, nil
}

// Channel moves files through the SFTP exchange directories of the bank
// connection. Deployments mount the remote endpoint at the configured paths;
// the session handling underneath stays outside this service.
type Channel struct {
	inboundDir  string
	outboundDir string
	timeout     time.Duration
}

func (c *Channel) Deliver(ctx context.Context, filename string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelIO, err)
	}

	target := filepath.Join(c.outboundDir, filepath.Base(filename))
	tmp := target + ".part"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrChannelIO, filename, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: publish %s: %v", domain.ErrChannelIO, filename, err)
	}
	return nil
}

func (c *Channel) ListPending(ctx context.Context, max int) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entries, err := os.ReadDir(c.inboundDir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", domain.ErrChannelIO, c.inboundDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if max > 0 && len(names) > max {
		names = names[:max]
	}

	docs := make([]domain.Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return docs, fmt.Errorf("%w: %v", domain.ErrChannelIO, err)
		}
		payload, err := os.ReadFile(filepath.Join(c.inboundDir, name))
		if err != nil {
			return docs, fmt.Errorf("%w: read %s: %v", domain.ErrChannelIO, name, err)
		}
		docs = append(docs, domain.Document{Filename: name, Payload: payload})
	}
	return docs, nil
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
