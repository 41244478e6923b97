package reconcile

import "github.com/lostmerchants/tracker/internal/model"

// Project returns the viewer-specific copy of a group: hidden sightings are
// included only when the viewer is their uploader.  Pure; the input group
// is never mutated.  Used both for broadcast payloads and query responses.
func Project(g *model.MerchantGroup, viewer model.Identity) *model.MerchantGroup {
    out := *g
    out.Sightings = make([]*model.Sighting, 0, len(g.Sightings))
    for _, s := range g.Sightings {
        if !s.Hidden || s.Uploader().Matches(viewer) {
            out.Sightings = append(out.Sightings, s)
        }
    }
    return &out
}

// PublicView returns the projection shared by every viewer with no hidden
// sightings of their own: the group minus all hidden entries.
func PublicView(g *model.MerchantGroup) *model.MerchantGroup {
    return Project(g, model.Identity{})
}

// HasHidden reports whether the group holds any hidden sighting.  When it
// does not, every viewer shares the public projection and broadcasters can
// skip per-identity filtering entirely.
func HasHidden(g *model.MerchantGroup) bool {
    for _, s := range g.Sightings {
        if s.Hidden {
            return true
        }
    }
    return false
}
