package apiclient

import (
	"context"
	"net/http"
)

var camouflagePaths = []string{PathProfile, PathPointsBalance, PathInviteStats}

// VisitCamouflage issues one or two GETs against a shuffled set of read-only
// endpoints, pausing between them. Failures are discarded and never logged.
func (c *Client) VisitCamouflage(ctx context.Context) {
	if !c.cfg.Camouflage {
		return
	}
	paths := append([]string(nil), camouflagePaths...)
	c.rng.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })

	visits := 1 + c.rng.Intn(2)
	for i := 0; i < visits && i < len(paths); i++ {
		if ctx.Err() != nil {
			return
		}
		_, _ = c.Do(ctx, http.MethodGet, paths[i], nil)
		_ = c.sleep(ctx, c.cfg.CamouflageGap.Pick(c.rng))
	}
}
