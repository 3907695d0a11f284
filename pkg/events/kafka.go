package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// RoomEvent is the envelope every engine event is mirrored under. The
// payload carries the same JSON the websocket clients receive.
type RoomEvent struct {
	Name      string          `json:"name"`
	RoomCode  string          `json:"room_code"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type KafkaClient struct {
	writer *kafka.Writer
}

func NewKafkaClient(brokers []string, topic string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaClient{writer: writer}
}

// PublishRoomEvent writes one engine event to the topic. The message
// key is random so events spread across partitions.
func (k *KafkaClient) PublishRoomEvent(ctx context.Context, roomCode, name string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := RoomEvent{
		Name:      name,
		RoomCode:  roomCode,
		Timestamp: time.Now(),
		Payload:   payloadJSON,
	}

	messageJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(uuid.New().String()),
		Value: messageJSON,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}
