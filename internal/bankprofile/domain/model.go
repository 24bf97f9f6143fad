package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ChannelKind discriminates the connectivity variant for a bank profile.
type ChannelKind string

const (
	ChannelKindSFTP ChannelKind = "sftp"
	ChannelKindAPI  ChannelKind = "api"
)

func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelKindSFTP, ChannelKindAPI:
		return true
	default:
		return false
	}
}

// RequiredConfigFields returns the config keys a profile of this kind must
// carry. Validation happens at write time, never at use time.
func (k ChannelKind) RequiredConfigFields() []string {
	switch k {
	case ChannelKindSFTP:
		return []string{"host", "port", "username", "credential_ref", "inbound_dir", "outbound_dir"}
	case ChannelKindAPI:
		return []string{"base_url", "credential_ref"}
	default:
		return nil
	}
}

// BankProfile is the per-company connectivity record for one bank channel.
type BankProfile struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	CompanyID   snowflake.ID   `json:"company_id" gorm:"not null;index:ux_bank_profiles_company_bank,priority:1"`
	BankCode    string         `json:"bank_code" gorm:"type:text;not null;index:ux_bank_profiles_company_bank,priority:2"`
	ChannelKind ChannelKind    `json:"channel_kind" gorm:"type:text;not null"`
	Config      datatypes.JSON `json:"config" gorm:"type:jsonb;not null"`
	IsActive    bool           `json:"is_active" gorm:"not null;default:true"`
	UpdatedBy   string         `json:"updated_by" gorm:"type:text;not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null"`
}

func (BankProfile) TableName() string { return "bank_profiles" }

// DecodedConfig unmarshals the stored config bag for channel construction.
func (p *BankProfile) DecodedConfig() (map[string]any, error) {
	if len(p.Config) == 0 {
		return nil, nil
	}
	var config map[string]any
	if err := json.Unmarshal(p.Config, &config); err != nil {
		return nil, err
	}
	return config, nil
}
