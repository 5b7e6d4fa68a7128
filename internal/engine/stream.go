package engine

import "io"

// pipe is the channel-backed Stream shared by engine implementations. A
// single producer goroutine pushes messages; the consumer pulls them in
// order via Recv.
type pipe struct {
	ch     chan pipeItem
	closed chan struct{}
}

type pipeItem struct {
	msg *Message
	err error
}

func newPipe() *pipe {
	return &pipe{
		ch:     make(chan pipeItem, 16),
		closed: make(chan struct{}),
	}
}

// send delivers one message. It returns false when the consumer has closed
// the stream, letting the producer wind down early.
func (p *pipe) send(msg *Message) bool {
	select {
	case p.ch <- pipeItem{msg: msg}:
		return true
	case <-p.closed:
		return false
	}
}

// fail delivers a terminal error. The producer must still call finish.
func (p *pipe) fail(err error) {
	select {
	case p.ch <- pipeItem{err: err}:
	case <-p.closed:
	}
}

// finish terminates the stream. Call exactly once, after all sends.
func (p *pipe) finish() {
	close(p.ch)
}

func (p *pipe) Recv() (*Message, error) {
	item, ok := <-p.ch
	if !ok {
		return nil, io.EOF
	}
	if item.err != nil {
		return nil, item.err
	}
	return item.msg, nil
}

func (p *pipe) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}
