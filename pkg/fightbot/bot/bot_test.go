package bot

import (
	"context"
	"testing"
	"time"
)

func waitForReply(t *testing.T, ch *fakeChannel, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		ch.mu.Lock()
		for _, m := range ch.sent {
			if m.Content == want {
				ch.mu.Unlock()
				return
			}
		}
		ch.mu.Unlock()

		select {
		case <-deadline:
			t.Fatalf("reply %q never sent", want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBotMessageLoop(t *testing.T) {
	t.Run("commands are answered with quoted replies", func(t *testing.T) {
		b, ch := newTestBot(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := b.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer b.Stop()

		ch.msgs <- groupMsg(testOwner, "/help")
		waitForReply(t, ch, b.helpCommand().Response)

		ch.mu.Lock()
		reply := ch.sent[len(ch.sent)-1]
		ch.mu.Unlock()
		if reply.ReplyTo != "MSG1" {
			t.Errorf("reply not quoted: %+v", reply)
		}
	})

	t.Run("plain text is ignored", func(t *testing.T) {
		b, ch := newTestBot(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := b.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer b.Stop()

		ch.msgs <- groupMsg(testOwner, "just chatting")
		time.Sleep(50 * time.Millisecond)

		ch.mu.Lock()
		n := len(ch.sent)
		ch.mu.Unlock()
		if n != 0 {
			t.Errorf("expected no replies, got %d", n)
		}
	})

	t.Run("stop cancels running loops", func(t *testing.T) {
		b, ch := newTestBot(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := b.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		cs := b.states.Get(testGroup)
		cs.Lock()
		cs.Broadcast.Interval = 10 * time.Millisecond
		cs.Unlock()

		ch.msgs <- groupMsg(testOwner, "/spam raid")
		waitForReply(t, ch, "Spam started 🥊 (delay 0.01s).")

		b.Stop()

		ch.mu.Lock()
		n := len(ch.sent)
		ch.mu.Unlock()
		time.Sleep(60 * time.Millisecond)
		ch.mu.Lock()
		after := len(ch.sent)
		ch.mu.Unlock()
		if after > n+1 {
			t.Errorf("broadcast survived Stop: %d -> %d", n, after)
		}
	})
}
