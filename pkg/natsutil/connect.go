package natsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
)

// Connect opens a NATS connection, adding mTLS options when security is set
// to mtls and logging connection state changes.
func Connect(natsURL string, security *models.SecurityConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	var opts []nats.Option

	if security != nil && security.Mode == models.SecurityModeMTLS {
		tlsConf, err := TLSConfig(security)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")

	return nc, nil
}

// JetStream returns a JetStream context, scoped to domain when one is given.
func JetStream(nc *nats.Conn, domain string) (jetstream.JetStream, error) {
	if domain != "" {
		js, err := jetstream.NewWithDomain(nc, domain)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context with domain %s: %w", domain, err)
		}

		return js, nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return js, nil
}

// EnsureStream returns the named stream, creating it when missing and adding
// any of subjects it does not already cover.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string) (jetstream.Stream, error) {
	stream, err := js.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{Name: name, Subjects: subjects})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", name, err)
		}

		return stream, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", name, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	merged := info.Config.Subjects
	for _, subject := range subjects {
		merged = ensureSubjectList(merged, subject)
	}

	if len(merged) == len(info.Config.Subjects) {
		return stream, nil
	}

	cfg := info.Config
	cfg.Subjects = merged

	stream, err = js.UpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to update stream %s subjects: %w", name, err)
	}

	return stream, nil
}

// ensureSubjectList appends subject unless an existing entry already matches it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if subjectMatches(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, tok := range pTokens {
		if tok == ">" {
			return len(sTokens) > i
		}

		if i >= len(sTokens) {
			return false
		}

		if tok != "*" && tok != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}
