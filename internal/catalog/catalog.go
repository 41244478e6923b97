// Package catalog loads the static merchant and server data the service
// validates submissions against.  The data ships as a JSON file maintained
// alongside the game's patch cycle; it is read once at startup and treated
// as immutable afterwards, so lookups need no locking.
package catalog

import (
    "encoding/json"
    "fmt"
    "os"
    "time"

    "github.com/lostmerchants/tracker/internal/model"
)

// MerchantDef describes one merchant: where it can spawn, what it can
// carry and at which hours of the day (UTC) a new appearance window opens.
type MerchantDef struct {
    Name            string       `json:"name"`
    Zones           []string     `json:"zones"`
    Cards           []model.Card `json:"cards"`
    AppearanceHours []int        `json:"appearance_hours"`
}

// file mirrors the on-disk layout of the data file.
type file struct {
    Regions   map[string][]string `json:"regions"`
    Merchants []MerchantDef       `json:"merchants"`
}

// Catalog answers validity questions about servers, merchants and payloads
// and computes appearance windows for lazy group creation.
type Catalog struct {
    servers   map[string]struct{}
    merchants map[string]MerchantDef
    duration  time.Duration
}

// Load reads the data file at path and builds a Catalog.  windowDuration is
// how long each appearance window stays open once it starts.
func Load(path string, windowDuration time.Duration) (*Catalog, error) {
    raw, err := os.ReadFile(path)
    if err != nil {
        return nil, fmt.Errorf("catalog: read %s: %w", path, err)
    }
    var f file
    if err := json.Unmarshal(raw, &f); err != nil {
        return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
    }
    return New(f.Regions, f.Merchants, windowDuration), nil
}

// New builds a Catalog from already-parsed data.  Exposed separately so
// tests can construct catalogs without touching the filesystem.
func New(regions map[string][]string, merchants []MerchantDef, windowDuration time.Duration) *Catalog {
    c := &Catalog{
        servers:   make(map[string]struct{}),
        merchants: make(map[string]MerchantDef, len(merchants)),
        duration:  windowDuration,
    }
    for _, servers := range regions {
        for _, s := range servers {
            c.servers[s] = struct{}{}
        }
    }
    for _, m := range merchants {
        c.merchants[m.Name] = m
    }
    return c
}

// IsValidServer reports whether the server name exists in any region.
func (c *Catalog) IsValidServer(server string) bool {
    _, ok := c.servers[server]
    return ok
}

// Servers returns every known server name.  Order is unspecified.
func (c *Catalog) Servers() []string {
    out := make([]string, 0, len(c.servers))
    for s := range c.servers {
        out = append(out, s)
    }
    return out
}

// Validate checks a submission's shape against the catalog: the merchant
// must exist, the zone must be one the merchant spawns in, and every card
// must be in the merchant's stock list with a matching rarity.  An empty
// card list is invalid.
func (c *Catalog) Validate(name string, s *model.Sighting) bool {
    def, ok := c.merchants[name]
    if !ok {
        return false
    }
    zoneOK := false
    for _, z := range def.Zones {
        if z == s.Zone {
            zoneOK = true
            break
        }
    }
    if !zoneOK || len(s.Cards) == 0 {
        return false
    }
    for _, card := range s.Cards {
        found := false
        for _, known := range def.Cards {
            if known.Name == card.Name && known.Rarity == card.Rarity {
                found = true
                break
            }
        }
        if !found {
            return false
        }
    }
    return true
}

// ActiveWindow returns the appearance window covering now for the named
// merchant, if any.  A window opens at each configured appearance hour
// (UTC) and lasts the catalog's window duration.  ok is false when the
// merchant is unknown or no window covers now.
func (c *Catalog) ActiveWindow(name string, now time.Time) (start, expires time.Time, ok bool) {
    def, found := c.merchants[name]
    if !found {
        return time.Time{}, time.Time{}, false
    }
    now = now.UTC()
    midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
    for _, h := range def.AppearanceHours {
        // Check today's window and, for windows spanning midnight, yesterday's.
        for _, day := range []time.Time{midnight, midnight.AddDate(0, 0, -1)} {
            s := day.Add(time.Duration(h) * time.Hour)
            e := s.Add(c.duration)
            if !now.Before(s) && now.Before(e) {
                return s, e, true
            }
        }
    }
    return time.Time{}, time.Time{}, false
}
