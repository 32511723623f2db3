package natsutil

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/hoibridge/pkg/logger"
	"github.com/carverauto/hoibridge/pkg/models"
)

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:     "adds subject when list empty",
			subjects: nil,
			subject:  "hoi.commands",
			want:     []string{"hoi.commands"},
		},
		{
			name:     "keeps list when wildcard matches",
			subjects: []string{"hoi.events.*"},
			subject:  "hoi.events.auth",
			want:     []string{"hoi.events.*"},
		},
		{
			name:     "keeps list when greater wildcard matches",
			subjects: []string{"hoi.>"},
			subject:  "hoi.events.passive_data",
			want:     []string{"hoi.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"hoi.commands"},
			subject:  "hoi.events.>",
			want:     []string{"hoi.commands", "hoi.events.>"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, ensureSubjectList(tc.subjects, tc.subject))
		})
	}
}

func TestTLSConfigRequiresMTLS(t *testing.T) {
	_, err := TLSConfig(nil)
	require.ErrorIs(t, err, ErrMTLSRequired)

	_, err = TLSConfig(&models.SecurityConfig{Mode: models.SecurityModeNone})
	require.ErrorIs(t, err, ErrMTLSRequired)
}

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	t.Cleanup(srv.Shutdown)

	return srv
}

func TestEnsureStreamCreatesAndMerges(t *testing.T) {
	srv := runJetStreamServer(t)

	nc, err := Connect(srv.ClientURL(), nil, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := JetStream(nc, "")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = EnsureStream(ctx, js, "HOI", []string{"hoi.commands"})
	require.NoError(t, err)

	stream, err := EnsureStream(ctx, js, "HOI", []string{"hoi.commands", "hoi.events.>"})
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hoi.commands", "hoi.events.>"}, info.Config.Subjects)
}
