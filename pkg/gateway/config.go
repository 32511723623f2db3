/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package gateway runs the bridge as a service attached to NATS JetStream.
package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/hoibridge/pkg/bridge"
	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
)

const (
	defaultStreamName        = "HOI"
	defaultConsumerName      = "hoi-bridge"
	defaultCommandSubject    = "hoi.commands"
	defaultPublishMaxElapsed = 5 * time.Second
	defaultStatusInterval    = 30 * time.Second
)

var (
	ErrMissingNATSURL        = errors.New("nats_url is required")
	ErrInvalidSubject        = errors.New("subject must not contain spaces or wildcards")
	ErrCommandLoop           = errors.New("command_subject must not be under event_subject_prefix")
	ErrNegativeDuration      = errors.New("durations must not be negative")
	ErrMissingTLSFiles       = errors.New("mtls security requires cert_file, key_file and ca_file")
	ErrUnsupportedSecurity   = errors.New("unsupported security mode")
	ErrMissingConsumerConfig = errors.New("stream_name and consumer_name must not be empty")
)

// Config is the configuration of the hoi-bridge service.
type Config struct {
	NATSURL            string                 `json:"nats_url" yaml:"nats_url"`
	Domain             string                 `json:"domain,omitempty" yaml:"domain,omitempty"`
	StreamName         string                 `json:"stream_name" yaml:"stream_name"`
	ConsumerName       string                 `json:"consumer_name" yaml:"consumer_name"`
	CommandSubject     string                 `json:"command_subject" yaml:"command_subject"`
	EventSubjectPrefix string                 `json:"event_subject_prefix" yaml:"event_subject_prefix"`
	PollInterval       models.Duration        `json:"poll_interval" yaml:"poll_interval"`
	HandshakeTimeout   models.Duration        `json:"handshake_timeout" yaml:"handshake_timeout"`
	TelemetryKey       string                 `json:"telemetry_key" yaml:"telemetry_key"`
	PublishMaxElapsed  models.Duration        `json:"publish_max_elapsed" yaml:"publish_max_elapsed"`
	StatusInterval     models.Duration        `json:"status_interval" yaml:"status_interval"`
	Security           *models.SecurityConfig `json:"security,omitempty" yaml:"security,omitempty"`
	Logging            *logger.Config         `json:"logging,omitempty" yaml:"logging,omitempty"`
	Metrics            *logger.OTelConfig     `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.StreamName == "" {
		c.StreamName = defaultStreamName
	}

	if c.ConsumerName == "" {
		c.ConsumerName = defaultConsumerName
	}

	if c.CommandSubject == "" {
		c.CommandSubject = defaultCommandSubject
	}

	if c.EventSubjectPrefix == "" {
		c.EventSubjectPrefix = bridge.DefaultEventSubjectPrefix
	}

	if c.TelemetryKey == "" {
		c.TelemetryKey = bridge.DefaultTelemetryKey
	}

	if c.PollInterval == 0 {
		c.PollInterval = models.Duration(bridge.DefaultPollInterval)
	}

	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = models.Duration(bridge.DefaultHandshakeTimeout)
	}

	if c.PublishMaxElapsed == 0 {
		c.PublishMaxElapsed = models.Duration(defaultPublishMaxElapsed)
	}

	if c.StatusInterval == 0 {
		c.StatusInterval = models.Duration(defaultStatusInterval)
	}
}

// Validate applies defaults and checks the configuration.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	var errs []error

	if c.NATSURL == "" {
		errs = append(errs, ErrMissingNATSURL)
	}

	if strings.TrimSpace(c.StreamName) == "" || strings.TrimSpace(c.ConsumerName) == "" {
		errs = append(errs, ErrMissingConsumerConfig)
	}

	for _, subject := range []string{c.CommandSubject, c.EventSubjectPrefix} {
		if strings.ContainsAny(subject, " \t*>") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidSubject, subject))
		}
	}

	if c.CommandSubject == c.EventSubjectPrefix || strings.HasPrefix(c.CommandSubject, c.EventSubjectPrefix+".") {
		errs = append(errs, ErrCommandLoop)
	}

	for name, d := range map[string]models.Duration{
		"poll_interval":       c.PollInterval,
		"handshake_timeout":   c.HandshakeTimeout,
		"publish_max_elapsed": c.PublishMaxElapsed,
		"status_interval":     c.StatusInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNegativeDuration, name))
		}
	}

	if err := validateSecurity(c.Security); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateSecurity(sec *models.SecurityConfig) error {
	if sec == nil {
		return nil
	}

	switch sec.Mode {
	case "", models.SecurityModeNone:
		return nil
	case models.SecurityModeMTLS:
		if sec.TLS.CertFile == "" || sec.TLS.KeyFile == "" || sec.TLS.CAFile == "" {
			return ErrMissingTLSFiles
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSecurity, sec.Mode)
	}
}

func (c *Config) bridgeConfig() bridge.Config {
	return bridge.Config{
		PollInterval:       time.Duration(c.PollInterval),
		HandshakeTimeout:   time.Duration(c.HandshakeTimeout),
		TelemetryKey:       c.TelemetryKey,
		EventSubjectPrefix: c.EventSubjectPrefix,
	}
}
