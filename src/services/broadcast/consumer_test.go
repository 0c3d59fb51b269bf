package broadcast

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"chatify/src/clients/kafka"
	"chatify/src/domain"
)

type recordingDeliverer struct {
	delivered []*domain.ChatEvent
	accepted  int
}

func (d *recordingDeliverer) Deliver(_ string, event *domain.ChatEvent) int {
	d.delivered = append(d.delivered, event)
	return d.accepted
}

func newTestConsumer(t *testing.T, deliverer EventDeliverer) *Service {
	t.Helper()
	svc, err := NewService(&Options{
		KafkaClient: &kafka.Client{},
		Deliverer:   deliverer,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func record(value []byte) *kgo.Record {
	return &kgo.Record{Topic: "chat-events", Partition: 1, Offset: 10, Value: value}
}

func TestHandleRecordDeliversDecodedEvent(t *testing.T) {
	deliverer := &recordingDeliverer{accepted: 3}
	svc := newTestConsumer(t, deliverer)

	event := domain.ChatEvent{ScopeType: domain.ScopeChannel, ScopeID: "general", SenderID: "u-1"}
	payload, err := domain.EncodeEvent(&event)
	require.NoError(t, err)

	assert.Equal(t, 3, svc.handleRecord(record(payload)))
	require.Len(t, deliverer.delivered, 1)
	assert.Equal(t, "general", deliverer.delivered[0].ScopeID)
}

func TestHandleRecordSkipsPoison(t *testing.T) {
	deliverer := &recordingDeliverer{}
	svc := newTestConsumer(t, deliverer)

	assert.Equal(t, 0, svc.handleRecord(record([]byte("{broken"))))
	assert.Equal(t, 0, svc.handleRecord(record(nil)))
	assert.Equal(t, 0, svc.handleRecord(record([]byte{})))
	assert.Empty(t, deliverer.delivered, "poison records must not reach subscribers")
}

func TestHandleRecordSkipsInvalidScopeTypePayload(t *testing.T) {
	deliverer := &recordingDeliverer{}
	svc := newTestConsumer(t, deliverer)

	assert.Equal(t, 0, svc.handleRecord(record([]byte(`{"scopeType":"nope"}`))))
	assert.Empty(t, deliverer.delivered)
}

type fakeCommitter struct {
	commitErrs []error // consumed one per CommitRecords; nil means success
	committed  []*kgo.Record
}

func (c *fakeCommitter) CommitRecords(_ context.Context, records ...*kgo.Record) error {
	if len(c.commitErrs) > 0 {
		err := c.commitErrs[0]
		c.commitErrs = c.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	c.committed = append(c.committed, records...)
	return nil
}

func scopedRecord(t *testing.T, scopeID string, partition int32, offset int64) *kgo.Record {
	t.Helper()
	event := domain.ChatEvent{ScopeType: domain.ScopeChannel, ScopeID: scopeID, SenderID: "u-1"}
	payload, err := domain.EncodeEvent(&event)
	require.NoError(t, err)
	return &kgo.Record{Topic: "chat-events", Partition: partition, Offset: offset, Value: payload}
}

func fetchesOf(records ...*kgo.Record) kgo.Fetches {
	byPartition := map[int32][]*kgo.Record{}
	for _, r := range records {
		byPartition[r.Partition] = append(byPartition[r.Partition], r)
	}

	partitions := make([]kgo.FetchPartition, 0, len(byPartition))
	for partition, rs := range byPartition {
		partitions = append(partitions, kgo.FetchPartition{Partition: partition, Records: rs})
	}

	return kgo.Fetches{{Topics: []kgo.FetchTopic{{Topic: "chat-events", Partitions: partitions}}}}
}

func TestProcessBatchDeliversAndCommitsEveryRecord(t *testing.T) {
	deliverer := &recordingDeliverer{accepted: 1}
	svc := newTestConsumer(t, deliverer)
	committer := &fakeCommitter{}
	svc.committer = committer

	svc.processBatch(context.Background(), fetchesOf(
		scopedRecord(t, "general", 0, 1),
		scopedRecord(t, "random", 1, 4),
	))

	assert.Len(t, deliverer.delivered, 2)
	assert.Len(t, committer.committed, 2)
}

func TestProcessBatchKeepsDeliveringWhenCommitFails(t *testing.T) {
	deliverer := &recordingDeliverer{accepted: 1}
	svc := newTestConsumer(t, deliverer)
	committer := &fakeCommitter{commitErrs: []error{assert.AnError}}
	svc.committer = committer

	svc.processBatch(context.Background(), fetchesOf(
		scopedRecord(t, "general", 0, 1),
		scopedRecord(t, "general", 0, 2),
	))

	// The consumed position is already past both records, so the rest
	// of the batch must still fan out.
	require.Len(t, deliverer.delivered, 2, "a lost commit must not stop delivery")
	require.Len(t, committer.committed, 1)
	assert.Equal(t, int64(2), committer.committed[0].Offset)
}

func TestProcessBatchStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deliverer := &recordingDeliverer{}
	svc := newTestConsumer(t, deliverer)
	committer := &fakeCommitter{}
	svc.committer = committer

	svc.processBatch(ctx, fetchesOf(scopedRecord(t, "general", 0, 1)))

	assert.Empty(t, deliverer.delivered)
	assert.Empty(t, committer.committed, "nothing may commit past undelivered records")
}

func TestPreviewIsBounded(t *testing.T) {
	long := strings.Repeat("a", 1000)
	assert.Len(t, preview([]byte(long), 256), 256+3)
	assert.Equal(t, "short", preview([]byte("short"), 256))
}

func TestOptionsDefaults(t *testing.T) {
	opts := &Options{
		KafkaClient: &kafka.Client{},
		Deliverer:   &recordingDeliverer{},
	}
	require.NoError(t, applyDefaultsAndValidate(opts))
	assert.Equal(t, 256, opts.MaxPayloadLogSize)
	assert.Equal(t, "500ms", opts.BackoffInitial.String())
	assert.Equal(t, "15s", opts.BackoffMax.String())
}
