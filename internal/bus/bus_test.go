package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/courier-ai/courier/pkg/models"
)

func TestInboundFIFO(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.PublishInbound(&models.InboundMessage{
			Channel: "cli",
			ChatID:  "direct",
			Content: fmt.Sprintf("msg-%d", i),
		})
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg, err := b.ConsumeInbound(ctx)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		want := fmt.Sprintf("msg-%d", i)
		if msg.Content != want {
			t.Errorf("message %d: got %q, want %q", i, msg.Content, want)
		}
	}
	if b.InboundLen() != 0 {
		t.Errorf("expected empty queue, got %d", b.InboundLen())
	}
}

func TestConsumeBlocksUntilPublish(t *testing.T) {
	b := New()
	got := make(chan *models.OutboundMessage, 1)

	go func() {
		msg, err := b.ConsumeOutbound(context.Background())
		if err != nil {
			t.Errorf("consume: %v", err)
			return
		}
		got <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	b.PublishOutbound(&models.OutboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"})

	select {
	case msg := <-got:
		if msg.Content != "hi" {
			t.Errorf("got %q, want %q", msg.Content, "hi")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestConsumeRespectsCancellation(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, err := b.ConsumeInbound(ctx)
		errs <- err
	}()

	cancel()
	select {
	case err := <-errs:
		if err != context.Canceled {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.PublishInbound(&models.InboundMessage{Content: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked with no consumer")
	}
	if b.InboundLen() != 10000 {
		t.Errorf("queue length = %d, want 10000", b.InboundLen())
	}
}

func TestQueuesAreIndependent(t *testing.T) {
	b := New()
	b.PublishInbound(&models.InboundMessage{Content: "in"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.ConsumeOutbound(ctx); err == nil {
		t.Fatal("outbound consume should not see inbound messages")
	}
	if b.InboundLen() != 1 {
		t.Errorf("inbound length = %d, want 1", b.InboundLen())
	}
}
