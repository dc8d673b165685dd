package llm

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

const dummyPrefix = "(dummy reply) "

// Dummy echoes a prefix of the user prompt. It keeps a history so tests can
// inspect what was generated.
type Dummy struct {
	logger *log.Logger

	mu      sync.Mutex
	history []Request
}

func NewDummy(logger *log.Logger) *Dummy {
	return &Dummy{logger: logger}
}

func (d *Dummy) Generate(_ context.Context, req Request) (Response, error) {
	d.logger.Debug("using dummy generator")
	d.mu.Lock()
	d.history = append(d.history, req)
	d.mu.Unlock()

	text := req.User
	if r := []rune(text); len(r) > 200 {
		text = string(r[:200])
	}
	return Response{Content: dummyPrefix + text}, nil
}

// History returns the requests seen so far.
func (d *Dummy) History() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.history...)
}
