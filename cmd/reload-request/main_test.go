package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/oda/internal/messaging/kafka"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-brokers= a:9092, ,b:9092", "-requested-by=ops"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, opts.brokers)
	assert.Equal(t, kafka.TopicDatasetCommands, opts.topic)
	assert.Equal(t, "ops", opts.requestedBy)

	opts, err = parseOptions(nil, env(map[string]string{"KAFKA_BROKERS": "c:9092", "USER": "alex"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"c:9092"}, opts.brokers)
	assert.Equal(t, "alex", opts.requestedBy)

	opts, err = parseOptions(nil, env(map[string]string{"ODA_KAFKA_BROKERS": "d:9092", "KAFKA_BROKERS": "c:9092"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"d:9092"}, opts.brokers, "prefixed variable wins")
}

func TestParseOptions_Errors(t *testing.T) {
	_, err := parseOptions(nil, env(nil))
	require.ErrorContains(t, err, "brokers are required")

	_, err = parseOptions([]string{"-brokers=a:1", "-topic= "}, env(nil))
	require.ErrorContains(t, err, "topic is required")

	_, err = parseOptions([]string{"-nope"}, env(nil))
	require.Error(t, err)
}

type fakePublisher struct {
	topic, key string
	event      kafka.Event
	err        error
	closed     bool
}

func (f *fakePublisher) Publish(topic, key string, event kafka.Event) error {
	f.topic, f.key, f.event = topic, key, event
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func stubPublisher(t *testing.T, p *fakePublisher, dialErr error) {
	t.Helper()
	orig := newPublisher
	newPublisher = func([]string) (publisher, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return p, nil
	}
	t.Cleanup(func() { newPublisher = orig })
}

func TestRun(t *testing.T) {
	p := &fakePublisher{}
	stubPublisher(t, p, nil)

	var out bytes.Buffer
	require.NoError(t, run(options{brokers: []string{"a:1"}, topic: kafka.TopicDatasetCommands, requestedBy: "ops"}, &out))

	assert.Equal(t, kafka.TopicDatasetCommands, p.topic)
	assert.Equal(t, "ops", p.key)
	assert.Equal(t, kafka.EventTypeReloadRequested, p.event.Type())
	assert.True(t, p.closed)
	assert.Equal(t, "reload requested on oda.dataset.commands by \"ops\"\n", out.String())
}

func TestRun_Errors(t *testing.T) {
	stubPublisher(t, nil, errors.New("no brokers reachable"))
	require.ErrorContains(t, run(options{brokers: []string{"a:1"}}, &bytes.Buffer{}), "no brokers reachable")

	p := &fakePublisher{err: errors.New("send failed")}
	stubPublisher(t, p, nil)
	require.ErrorContains(t, run(options{brokers: []string{"a:1"}}, &bytes.Buffer{}), "send failed")
	assert.True(t, p.closed)
}
