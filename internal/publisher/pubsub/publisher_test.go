package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

type fakeResult struct {
	id  string
	err error
}

func (f fakeResult) Get(context.Context) (string, error) {
	return f.id, f.err
}

func TestPublishRecord(t *testing.T) {
	t.Parallel()

	var sent *pubsub.Message
	p := &Publisher{publish: func(_ context.Context, msg *pubsub.Message) publishResult {
		sent = msg
		return fakeResult{id: "msg-1"}
	}}

	rec := harvest.PaperRecord{Year: 2022, Title: "T", Category: "NLP"}
	id, err := p.Publish(context.Background(), "papers", rec)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.NotNil(t, sent)
	assert.Equal(t, map[string]string{"topic": "papers", "year": "2022", "annotation": "NLP"}, sent.Attributes)

	var decoded harvest.PaperRecord
	require.NoError(t, json.Unmarshal(sent.Data, &decoded))
	assert.Equal(t, "T", decoded.Title)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "papers", "x")
	assert.Error(t, err)

	p := &Publisher{publish: func(context.Context, *pubsub.Message) publishResult {
		return fakeResult{err: errors.New("NotFound")}
	}}
	_, err = p.Publish(context.Background(), "papers", map[string]string{"k": "v"})
	assert.ErrorContains(t, err, "NotFound")

	_, err = p.Publish(context.Background(), "papers", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
}
