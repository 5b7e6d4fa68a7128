package engine

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestPipeDeliversInOrder(t *testing.T) {
	p := newPipe()
	go func() {
		p.send(&Message{Type: MessageInit, SessionID: "s"})
		p.send(&Message{Type: MessageText, Text: "a"})
		p.send(&Message{Type: MessageText, Text: "b"})
		p.finish()
	}()

	var got []*Message
	for {
		msg, err := p.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		got = append(got, msg)
	}

	if len(got) != 3 {
		t.Fatalf("received %d messages, want 3", len(got))
	}
	if got[0].Type != MessageInit || got[1].Text != "a" || got[2].Text != "b" {
		t.Errorf("messages out of order: %+v", got)
	}
}

func TestPipeFailSurfacesError(t *testing.T) {
	p := newPipe()
	go func() {
		p.send(&Message{Type: MessageInit})
		p.fail(errors.New("upstream broke"))
		p.finish()
	}()

	if _, err := p.Recv(); err != nil {
		t.Fatalf("first Recv() error = %v", err)
	}
	if _, err := p.Recv(); err == nil || err.Error() != "upstream broke" {
		t.Fatalf("second Recv() error = %v, want upstream broke", err)
	}
	if _, err := p.Recv(); err != io.EOF {
		t.Fatalf("Recv() after finish = %v, want EOF", err)
	}
}

func TestPipeCloseUnblocksProducer(t *testing.T) {
	p := newPipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overfill the buffer; without Close the final sends would block.
		for i := 0; i < 100; i++ {
			if !p.send(&Message{Type: MessageText, Text: "x"}) {
				return
			}
		}
		t.Error("send should report a closed consumer")
	}()

	time.Sleep(10 * time.Millisecond)
	_ = p.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after Close")
	}
}

func TestFactoryRegistry(t *testing.T) {
	RegisterFactory("fake", func(config map[string]any) (Engine, error) {
		return nil, errors.New("fake factory called")
	})

	if _, err := New("fake", nil); err == nil || err.Error() != "fake factory called" {
		t.Errorf("New(fake) error = %v", err)
	}
	if _, err := New("definitely-unregistered", nil); err == nil {
		t.Error("New() of unknown engine should error")
	}
}

func TestBuiltinFactoriesRegistered(t *testing.T) {
	// Both providers self-register in init; building without credentials
	// must fail with a configuration error, not an unknown-engine error.
	for _, name := range []string{"openai", "gemini"} {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "")
		_, err := New(name, nil)
		if err == nil {
			t.Errorf("New(%s) without credentials should error", name)
			continue
		}
		if err.Error() == "unknown engine: "+name {
			t.Errorf("factory %s not registered", name)
		}
	}
}
