package kafka

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageReader is the subset of *kafka.Reader the consumers use
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

func newReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
}

// consume reads until ctx is cancelled. Read and handler errors are logged
// and never stop the loop.
func consume(ctx context.Context, reader messageReader, log zerolog.Logger, handle func(context.Context, kafka.Message) error) error {
	log.Info().Str("topic", reader.Config().Topic).Msg("starting kafka consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("kafka consumer shutting down")
			return reader.Close()
		default:
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return reader.Close()
				}
				log.Error().Err(err).Msg("error reading message")
				continue
			}

			log.Debug().Int("partition", msg.Partition).Int64("offset", msg.Offset).Str("key", string(msg.Key)).Msg("received message")
			if err := handle(ctx, msg); err != nil {
				log.Error().Err(err).Int64("offset", msg.Offset).Msg("error processing message")
			}
		}
	}
}
