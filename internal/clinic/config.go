// Package clinic provides clinic-specific configuration and lookup.
package clinic

import (
	"fmt"
	"strings"
	"time"
)

// IntegrationType selects the booking strategy for a clinic.
type IntegrationType string

const (
	// IntegrationRealtimePMS books directly against the clinic's
	// practice management system over its live API.
	IntegrationRealtimePMS IntegrationType = "realtime_pms"
	// IntegrationNoAPI has no machine interface at all; bookings become
	// manual-entry tasks for the front desk.
	IntegrationNoAPI IntegrationType = "no_api"
	// IntegrationStoreManaged books through our own schedule store with
	// its atomic hold-and-book procedure. This is the default.
	IntegrationStoreManaged IntegrationType = "store_managed"
)

// PMSCredentials authenticate against the clinic's practice management system.
type PMSCredentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	SiteID   string `json:"site_id,omitempty"`
}

// NotificationPrefs holds staff notification targets for a clinic.
type NotificationPrefs struct {
	EmailEnabled    bool     `json:"email_enabled"`
	EmailRecipients []string `json:"email_recipients,omitempty"`
}

// Config holds clinic-specific configuration.
type Config struct {
	ClinicID string `json:"clinic_id"`
	Name     string `json:"name"`
	// Phone is the number patients call, used to resolve the clinic on
	// inbound voice webhooks (E.164).
	Phone    string `json:"phone,omitempty"`
	Timezone string `json:"timezone"` // e.g. "America/New_York"
	// Integration selects which booking strategy serves this clinic.
	Integration IntegrationType `json:"integration"`
	// CapacityOverride, when set, replaces each unblocked slot's capacity
	// when computing availability. Blocked slots are untouched.
	CapacityOverride *int              `json:"capacity_override,omitempty"`
	PMSCredentials   PMSCredentials    `json:"pms_credentials,omitempty"`
	Notifications    NotificationPrefs `json:"notifications"`
}

// DefaultConfig returns the configuration used before a clinic is onboarded.
func DefaultConfig(clinicID string) *Config {
	return &Config{
		ClinicID:    clinicID,
		Timezone:    "America/New_York",
		Integration: IntegrationStoreManaged,
	}
}

// Location resolves the clinic's IANA timezone, falling back to Eastern
// when unset or invalid. "Today" for a caller always means today at the
// clinic, not on the server.
func (c *Config) Location() *time.Location {
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	loc, _ := time.LoadLocation("America/New_York")
	return loc
}

// EffectiveIntegration normalizes the integration type, defaulting to
// store-managed for unknown or empty values.
func (c *Config) EffectiveIntegration() IntegrationType {
	switch IntegrationType(strings.ToLower(string(c.Integration))) {
	case IntegrationRealtimePMS:
		return IntegrationRealtimePMS
	case IntegrationNoAPI:
		return IntegrationNoAPI
	default:
		return IntegrationStoreManaged
	}
}

// SpokenName returns the clinic name for speech, with a generic fallback.
func (c *Config) SpokenName() string {
	if c.Name == "" {
		return "the clinic"
	}
	return c.Name
}

func (c *Config) cacheKey() string {
	return fmt.Sprintf("clinic:config:%s", c.ClinicID)
}
