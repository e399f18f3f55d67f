/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates the agent's YAML configuration.
// One file describes the marketplace endpoint and every offering this
// agent serves; validation happens up front so a bad file fails the
// process at startup rather than a lane at 3am.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
	"sigs.k8s.io/yaml"

	"github.com/eschercloudai/site-agent/pkg/backend"
	"github.com/eschercloudai/site-agent/pkg/components"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
	"github.com/eschercloudai/site-agent/pkg/identity"
)

// Duration wraps time.Duration so config files can say "5m" rather than
// count nanoseconds.
type Duration struct {
	time.Duration
}

// MarshalJSON implements the json.Marshaler interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.  Accepts a
// duration string or a bare number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var value any

	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	switch value := value.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: malformed duration %q: %w", coreerrors.ErrConfiguration, value, err)
		}

		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
	default:
		return fmt.Errorf("%w: durations must be strings or seconds", coreerrors.ErrConfiguration)
	}

	return nil
}

// Marketplace describes the control plane endpoint.
type Marketplace struct {
	// URL is the marketplace API root.
	URL string `json:"url"`

	// Token is the provider scoped API token.  Prefer TokenFile so the
	// secret stays out of the config file.
	Token string `json:"token,omitempty"`

	// TokenFile reads the token from a file, e.g. a mounted secret.
	TokenFile string `json:"token_file,omitempty"`

	// InsecureSkipTLSVerify disables certificate validation.  Only for
	// development installs with self-signed certificates.
	InsecureSkipTLSVerify bool `json:"insecure_skip_tls_verify,omitempty"`

	// Timeout is the per-operation deadline.
	Timeout Duration `json:"timeout,omitempty"`
}

// ResolveToken returns the API token, reading TokenFile if set.
func (m *Marketplace) ResolveToken() (string, error) {
	if m.TokenFile == "" {
		return m.Token, nil
	}

	data, err := os.ReadFile(m.TokenFile)
	if err != nil {
		return "", fmt.Errorf("%w: reading token file: %w", coreerrors.ErrConfiguration, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Messaging describes the event broker for event-driven offerings.
type Messaging struct {
	// BrokerURL is the MQTT broker endpoint.
	BrokerURL string `json:"broker_url"`

	// ClientID identifies this agent to the broker.
	ClientID string `json:"client_id,omitempty"`

	// Username and Password are the broker credentials.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// TopicPrefix overrides the default event topic prefix.
	TopicPrefix string `json:"topic_prefix,omitempty"`
}

// Periods are the polling intervals per lane.  Zero values take the
// built-in defaults.
type Periods struct {
	Orders     Duration `json:"orders,omitempty"`
	Membership Duration `json:"membership,omitempty"`
	Reports    Duration `json:"reports,omitempty"`
}

// Processing modes.
const (
	// ModePoll runs full passes on fixed periods.
	ModePoll = "poll"

	// ModeEvents reacts to marketplace notifications with a periodic
	// safety sweep.
	ModeEvents = "events"
)

// Offering configures one marketplace offering served by this agent.
type Offering struct {
	// Name is the human readable offering name used in logs and metrics.
	Name string `json:"name"`

	// UUID is the marketplace offering identifier.
	UUID string `json:"uuid"`

	// Backend selects the registered backend type.
	Backend string `json:"backend"`

	// BackendSettings are passed verbatim to the backend factory.
	BackendSettings map[string]string `json:"backend_settings,omitempty"`

	// Components declare the offering's charged dimensions.
	Components []components.Component `json:"components"`

	// Timezone anchors billing period boundaries, defaulting to UTC.
	Timezone string `json:"timezone,omitempty"`

	// UsernamePolicy selects how site usernames are derived.
	UsernamePolicy string `json:"username_policy,omitempty"`

	// UsernameOptions tune the selected policy.
	UsernameOptions map[string]string `json:"username_options,omitempty"`

	// SyncServiceAccounts authorizes project service accounts on the
	// backend alongside team members.
	SyncServiceAccounts bool `json:"sync_service_accounts,omitempty"`

	// SyncCourseAccounts authorizes project course accounts on the
	// backend alongside team members.
	SyncCourseAccounts bool `json:"sync_course_accounts,omitempty"`

	// Mode selects polling or event-driven processing.
	Mode string `json:"mode,omitempty"`

	// Messaging configures the event broker, required in events mode.
	Messaging *Messaging `json:"messaging,omitempty"`

	// CumulativeUsage marks the backend as reporting lifetime counters
	// that must be rebased per billing period.
	CumulativeUsage bool `json:"cumulative_usage,omitempty"`

	// Periods override the lane polling intervals.
	Periods Periods `json:"periods,omitempty"`

	// SweepSchedule overrides the event mode safety sweep schedule.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

// Location returns the offering's billing timezone.
func (o *Offering) Location() (*time.Location, error) {
	if o.Timezone == "" {
		return time.UTC, nil
	}

	location, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: offering %s: unknown timezone %q", coreerrors.ErrConfiguration, o.Name, o.Timezone)
	}

	return location, nil
}

// File is the top level configuration.
type File struct {
	// StateDir persists baselines and other small state across restarts.
	StateDir string `json:"state_dir,omitempty"`

	// Marketplace is the control plane endpoint.
	Marketplace Marketplace `json:"marketplace"`

	// Offerings are the offerings this agent serves.
	Offerings []Offering `json:"offerings"`
}

func (f *File) defaults() {
	if f.StateDir == "" {
		f.StateDir = "/var/lib/site-agent"
	}

	for i := range f.Offerings {
		offering := &f.Offerings[i]

		if offering.Mode == "" {
			offering.Mode = ModePoll
		}

		if offering.UsernamePolicy == "" {
			offering.UsernamePolicy = identity.PolicyFullName
		}
	}
}

// Validate checks the whole file, aggregating nothing: the first
// problem is the error, fix them one at a time.
func (f *File) Validate() error {
	if f.Marketplace.URL == "" {
		return fmt.Errorf("%w: marketplace URL is required", coreerrors.ErrConfiguration)
	}

	if f.Marketplace.Token == "" && f.Marketplace.TokenFile == "" {
		return fmt.Errorf("%w: marketplace token or token file is required", coreerrors.ErrConfiguration)
	}

	if len(f.Offerings) == 0 {
		return fmt.Errorf("%w: at least one offering is required", coreerrors.ErrConfiguration)
	}

	seen := map[string]bool{}

	for i := range f.Offerings {
		if err := f.Offerings[i].validate(); err != nil {
			return err
		}

		if seen[f.Offerings[i].UUID] {
			return fmt.Errorf("%w: offering %s configured twice", coreerrors.ErrConfiguration, f.Offerings[i].UUID)
		}

		seen[f.Offerings[i].UUID] = true
	}

	return nil
}

func (o *Offering) validate() error {
	if o.Name == "" {
		return fmt.Errorf("%w: offerings need a name", coreerrors.ErrConfiguration)
	}

	if _, err := uuid.Parse(o.UUID); err != nil {
		return fmt.Errorf("%w: offering %s: malformed UUID %q", coreerrors.ErrConfiguration, o.Name, o.UUID)
	}

	if o.Backend == "" {
		return fmt.Errorf("%w: offering %s: backend type is required, have %v", coreerrors.ErrConfiguration, o.Name, backend.Types())
	}

	if len(o.Components) == 0 {
		return fmt.Errorf("%w: offering %s: at least one component is required", coreerrors.ErrConfiguration, o.Name)
	}

	for i := range o.Components {
		if o.Components[i].Name == "" {
			return fmt.Errorf("%w: offering %s: components need a name", coreerrors.ErrConfiguration, o.Name)
		}
	}

	if _, err := o.Location(); err != nil {
		return err
	}

	if _, err := identity.NewGenerator(o.UsernamePolicy, o.UsernameOptions); err != nil {
		return fmt.Errorf("offering %s: %w", o.Name, err)
	}

	switch o.Mode {
	case ModePoll:
	case ModeEvents:
		if o.Messaging == nil || o.Messaging.BrokerURL == "" {
			return fmt.Errorf("%w: offering %s: events mode needs a messaging broker", coreerrors.ErrConfiguration, o.Name)
		}
	default:
		return fmt.Errorf("%w: offering %s: unknown mode %q", coreerrors.ErrConfiguration, o.Name, o.Mode)
	}

	if o.SweepSchedule != "" {
		if _, err := cron.Parse(o.SweepSchedule); err != nil {
			return fmt.Errorf("%w: offering %s: malformed sweep schedule %q: %w", coreerrors.ErrConfiguration, o.Name, o.SweepSchedule, err)
		}
	}

	return nil
}

// Load reads, defaults and validates the configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config: %w", coreerrors.ErrConfiguration, err)
	}

	return Parse(data)
}

// Parse is Load for in-memory data, e.g. tests.
func Parse(data []byte) (*File, error) {
	file := &File{}

	if err := yaml.UnmarshalStrict(data, file); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %w", coreerrors.ErrConfiguration, err)
	}

	file.defaults()

	if err := file.Validate(); err != nil {
		return nil, err
	}

	return file, nil
}
