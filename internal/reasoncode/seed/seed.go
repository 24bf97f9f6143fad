package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/payrun/internal/reasoncode/domain"
	"github.com/spf13/viper"
)

// File format:
//
//	banks:
//	  ANZB:
//	    - raw_code: ACCP
//	      status: ACK
//	      label: accepted for processing
type seedEntry struct {
	RawCode string `mapstructure:"raw_code"`
	Status  string `mapstructure:"status"`
	Label   string `mapstructure:"label"`
}

// Load reads a YAML mapping file and upserts every entry. Existing rows are
// overwritten so OSS installs can ship a default mapping and refine it later.
func Load(ctx context.Context, svc domain.Service, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read reason code seed: %w", err)
	}

	banks := map[string][]seedEntry{}
	if err := v.UnmarshalKey("banks", &banks); err != nil {
		return fmt.Errorf("parse reason code seed: %w", err)
	}

	for bankCode, entries := range banks {
		for _, entry := range entries {
			status := domain.Status(strings.ToUpper(strings.TrimSpace(entry.Status)))
			if err := svc.Upsert(ctx, bankCode, entry.RawCode, status, entry.Label); err != nil {
				return fmt.Errorf("seed reason code %s/%s: %w", bankCode, entry.RawCode, err)
			}
		}
	}
	return nil
}
