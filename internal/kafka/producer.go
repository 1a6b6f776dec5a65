package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer is an asynchronous fire-and-forget Kafka writer. Messages are
// queued on an inbox channel and written by a background goroutine; write
// failures are logged, never returned, which matches the non-critical role
// of the events it carries.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	logf    func(format string, args ...any)

	mu     sync.Mutex
	closed bool
}

// NewProducer constructs a producer for the topic.
func NewProducer(brokers []string, topic string, buf int, logf func(format string, args ...any)) *Producer {
	if logf == nil {
		logf = log.Printf
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		logf:    logf,
	}
}

// Start runs the writer loop until the context ends, then flushes the inbox.
// The inbox channel is never closed: publishers can race shutdown, so the
// loop marks the producer closed and drains whatever made it in before that.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.closed = true
				p.mu.Unlock()
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						if err := p.w.Close(); err != nil {
							p.logf("kafka: close writer: %v", err)
						}
						return
					}
				}
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.logf("kafka: write %s: %v", string(m.Key), err)
	}
}

// Publish queues a message. It drops the message when the producer is shut
// down or the inbox is full so a slow broker cannot stall the caller.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logf("kafka: producer closed, dropping message for key %s", string(key))
		return
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
	default:
		p.logf("kafka: inbox full, dropping message for key %s", string(key))
	}
}

// WaitClosed blocks until the writer loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
