package ingestion

import (
	"context"
	"encoding/json"
	"testing"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMsg struct {
	subject string
	data    []byte
	opts    int
}

type fakeJetStream struct {
	msgs []capturedMsg
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.msgs = append(f.msgs, capturedMsg{subject: subject, data: data, opts: len(opts)})
	return &jetstream.PubAck{Stream: RecordStream}, nil
}

func vaultOutput(seq int64) core.CoreOutput {
	return core.CoreOutput{Envelope: &event.RecordEnvelope{
		Sequence:       seq,
		IdempotencyKey: "req-1",
		CommandType:    event.CommandTypeDeposit,
		VaultID:        testVault,
		Timestamp:      1_700_000_000,
		Record:         &event.VaultRecord{},
	}}
}

func TestRecordPublisher_PublishesSubjectAndMsgID(t *testing.T) {
	js := &fakeJetStream{}
	rp := NewRecordPublisher(js, 4, nil)

	rec := NewPublishableRecord(vaultOutput(7))
	require.NoError(t, rp.publish(context.Background(), rec))

	require.Len(t, js.msgs, 1)
	assert.Equal(t, "vault.records.VaultRecord."+testVault.String(), js.msgs[0].subject)
	assert.Equal(t, 1, js.msgs[0].opts)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &decoded))
	assert.Equal(t, float64(7), decoded["sequence"])
	assert.Equal(t, "Deposit", decoded["command_type"])
	assert.Len(t, decoded["state_hash"], 64)
}

func TestRecordPublisher_EnqueueDropsWhenFull(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	rp := NewRecordPublisher(&fakeJetStream{}, 2, metrics)

	rp.Enqueue(context.Background(), []core.CoreOutput{vaultOutput(1), vaultOutput(2), vaultOutput(3)})

	n, c := rp.Pending()
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, c)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PublishDrops))
}
