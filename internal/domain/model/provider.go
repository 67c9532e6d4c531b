package model

import (
	"fmt"
	"strings"
	"time"

	"divination-ai/internal/domain"
)

type ProviderKind string

const (
	ProviderCloud ProviderKind = "cloud"
	ProviderLocal ProviderKind = "local"
)

const (
	DefaultCloudMaxWait = 60 * time.Second
	DefaultLocalMaxWait = 180 * time.Second
	DefaultHardTimeout  = 300 * time.Second
)

// ProviderProfile is read once per session. MaxWait only scales the progress
// bar; HardTimeout is where the session gives up.
type ProviderProfile struct {
	Name        string        `yaml:"name" json:"name"`
	Kind        ProviderKind  `yaml:"kind" json:"kind"`
	MaxWait     time.Duration `yaml:"max_wait" json:"max_wait"`
	HardTimeout time.Duration `yaml:"hard_timeout" json:"hard_timeout"`
}

// NewProviderProfile fills the reference ceilings for kind.
func NewProviderProfile(name string, kind ProviderKind) ProviderProfile {
	p := ProviderProfile{Name: name, Kind: kind}
	return p.WithDefaults()
}

func (p ProviderProfile) WithDefaults() ProviderProfile {
	if p.Kind == "" {
		p.Kind = ProviderCloud
	}
	if p.MaxWait <= 0 {
		if p.Kind == ProviderLocal {
			p.MaxWait = DefaultLocalMaxWait
		} else {
			p.MaxWait = DefaultCloudMaxWait
		}
	}
	if p.HardTimeout <= 0 {
		p.HardTimeout = DefaultHardTimeout
	}
	return p
}

func (p ProviderProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return domain.ErrMissingProvider
	}
	if p.Kind != ProviderCloud && p.Kind != ProviderLocal {
		return fmt.Errorf("%w: provider kind %q", domain.ErrMissingProvider, p.Kind)
	}
	if p.MaxWait <= 0 || p.HardTimeout <= 0 {
		return fmt.Errorf("%w: provider %q has no wait ceilings", domain.ErrMissingProvider, p.Name)
	}
	return nil
}
