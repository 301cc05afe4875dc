package provisioning

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Unlimited is the tier value meaning "no limit" for memory, disk and cpu.
const Unlimited = 0

var (
	ErrMissingName   = errors.New("server name is required")
	ErrMissingOwner  = errors.New("owner username is required")
	ErrNegativeTier  = errors.New("tier values must not be negative")
	ErrInvalidAmount = errors.New("amount must be greater than 0")
)

// ResourceConfig is the configuration a user asks to have provisioned.
type ResourceConfig struct {
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	MemoryMB   int    `json:"memory_mb"`
	DiskMB     int    `json:"disk_mb"`
	CPUPercent int    `json:"cpu_percent"`
}

// Validate checks that every required configuration field is present.
func (c ResourceConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(c.Owner) == "" {
		return ErrMissingOwner
	}
	if c.MemoryMB < 0 || c.DiskMB < 0 || c.CPUPercent < 0 {
		return ErrNegativeTier
	}
	return nil
}

// Reservation is a priced ResourceConfig. Once a charge exists for it, it must not change.
type Reservation struct {
	ResourceConfig
	Amount int64 `json:"amount"`
}

func NewReservation(cfg ResourceConfig, amount int64) Reservation {
	return Reservation{ResourceConfig: cfg, Amount: amount}
}

func (r Reservation) Validate() error {
	if err := r.ResourceConfig.Validate(); err != nil {
		return err
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Fingerprint identifies a reservation by content; equal reservations share a fingerprint.
func (r Reservation) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d|%d|%d",
		strings.TrimSpace(r.Name), strings.TrimSpace(r.Owner), r.MemoryMB, r.DiskMB, r.CPUPercent, r.Amount)))
	return hex.EncodeToString(sum[:])
}

// Credentials is what the provisioning adapter hands back for a created resource.
type Credentials struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	PanelURL   string `json:"panel_url"`
}
