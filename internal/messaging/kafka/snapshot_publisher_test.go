package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestSnapshotPublisher_Publish(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	publisher := NewSnapshotPublisher(newProducer(mockProducer), "")

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicSnapshots {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "snap-1" {
			return fmt.Errorf("unexpected key %s", key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event SnapshotEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.Snapshot.TopState != "SP" {
			return fmt.Errorf("unexpected payload %+v", event.Snapshot)
		}
		return nil
	})

	if err := publisher.Publish(sampleSnapshot()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotPublisher_PublishDatasetLoaded(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	publisher := NewSnapshotPublisher(newProducer(mockProducer), "custom.snapshots")

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDatasetEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		return nil
	})

	if err := publisher.PublishDatasetLoaded("all_data.csv", 3, sampleSnapshot().Period); err != nil {
		t.Fatalf("publish dataset loaded failed: %v", err)
	}
	if publisher.topic != "custom.snapshots" {
		t.Fatalf("custom topic must be kept, got %s", publisher.topic)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotPublisher_NotInitialized(t *testing.T) {
	var publisher *SnapshotTopicPublisher
	if err := publisher.Publish(sampleSnapshot()); err == nil {
		t.Fatal("expected error for nil publisher")
	}

	empty := NewSnapshotPublisher(nil, "")
	if err := empty.PublishDatasetLoaded("f", 0, sampleSnapshot().Period); err == nil {
		t.Fatal("expected error for publisher without producer")
	}
}
