package main

import (
	"context"
	"fmt"
	"io"

	"github.com/deepgram/chorus/internal/services"
	"github.com/deepgram/chorus/internal/services/reconcile"
)

// printer writes each finished message once. Messages are keyed by speaker
// and text since a streamed turn reappears under a snapshot id after refresh.
type printer struct {
	out     io.Writer
	session string
	printed map[string]struct{}
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: make(map[string]struct{})}
}

func (p *printer) render(view reconcile.View) {
	if view.SessionID != p.session {
		p.session = view.SessionID
		p.printed = make(map[string]struct{})
	}

	for _, m := range view.Messages {
		if !m.IsComplete {
			continue
		}
		key := m.AgentName + "\x00" + m.Content
		if _, ok := p.printed[key]; ok {
			continue
		}
		p.printed[key] = struct{}{}

		speaker := m.AgentName
		if speaker == "" {
			speaker = m.Role
		}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), speaker, m.Content)
	}
}

func printUpdates(ctx context.Context, svcs *services.Services, p *printer) {
	for {
		engine := svcs.GetEngine()
		if engine == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-engine.Done():
			return
		case <-engine.Updates():
			p.render(engine.View())
		}
	}
}
