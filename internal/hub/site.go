// internal/hub/site.go
package hub

import (
	"context"

	"github.com/veloce-hq/duckhub/internal/ws"
)

// siteRoom is the fallback for peers on pages with no dedicated room. It
// contributes presence and nothing else.
type siteRoom struct {
	baseRoom
}

func (r *siteRoom) Join(_ context.Context)  { r.enter() }
func (r *siteRoom) Leave(_ context.Context) { r.exit() }

func (r *siteRoom) Handle(_ context.Context, env ws.Envelope) {
	r.hub.logger.Debugf("site: peer %s sent unhandled message %q", r.peer.ID, env.T)
}
