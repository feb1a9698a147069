package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockList is the set of resource types a session never downloads.
// Entries are CDP resource type names ("Image", "Font", "Media"); case and
// a plural "s" are ignored, so "images" works too.
type blockList map[string]bool

func newBlockList(types []string) blockList {
	b := make(blockList, len(types))
	for _, t := range types {
		if k := blockKey(t); k != "" {
			b[k] = true
		}
	}
	return b
}

func blockKey(t string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(t)), "s")
}

func (b blockList) blocks(t proto.NetworkResourceType) bool {
	return b[blockKey(string(t))]
}

// blockResources hijacks the page's requests and fails the blocked types.
// Registry pages carry heavy banners and fonts the verifiers never read.
// The router must be stopped when the page closes.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	list := newBlockList(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if list.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
