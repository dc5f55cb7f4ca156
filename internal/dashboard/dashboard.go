// Package dashboard derives the read-only views shown to supervisors: coverage
// counts, the per-inspectorate breakdown, the guard roster and the post map.
// Everything is computed from a projection snapshot plus the catalog.
package dashboard

import (
	"math"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/models"
)

const timeLayout = "15:04"

type InspectorateCount struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Region  string `json:"region"`
	Present int    `json:"present"`
	Total   int    `json:"total"`
}

type RegionCount struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Posts   int    `json:"posts"`
	Active  int    `json:"active"`
	Present int    `json:"present"`
}

// GuardView is a presence record joined with its catalog names
type GuardView struct {
	ID               string      `json:"id"`
	WarName          string      `json:"warName"`
	Rank             models.Rank `json:"rank"`
	InspectorateID   string      `json:"inspectorateId"`
	HealthCenterID   string      `json:"healthCenterId"`
	PSUS             bool        `json:"psus"`
	Timestamp        string      `json:"timestamp"`
	PostName         string      `json:"postName"`
	Region           string      `json:"region"`
	InspectorateName string      `json:"inspectorateName"`
	RankLabel        string      `json:"rankLabel"`
	LocalTime        string      `json:"localTime"`
}

type Summary struct {
	Region        string              `json:"region,omitempty"`
	Date          string              `json:"date"`
	TotalPosts    int                 `json:"totalPosts"`
	ActivePosts   int                 `json:"activePosts"`
	Present       int                 `json:"present"`
	Absent        int                 `json:"absent"`
	Coverage      float64             `json:"coverage"`
	Inspectorates []InspectorateCount `json:"inspectorates"`
	Regions       []RegionCount       `json:"regions"`
	Guards        []GuardView         `json:"guards"`
}

// Pin is one post on the coverage map
type Pin struct {
	PostID           string `json:"postId"`
	Name             string `json:"name"`
	Location         string `json:"location"`
	Region           string `json:"region"`
	Row              int    `json:"row"`
	Col              int    `json:"col"`
	Active           bool   `json:"active"`
	Covered          bool   `json:"covered"`
	WarName          string `json:"warName,omitempty"`
	Rank             string `json:"rank,omitempty"`
	InspectorateName string `json:"inspectorateName,omitempty"`
	LocalTime        string `json:"localTime,omitempty"`
}

type Builder struct {
	catalog *catalog.Catalog
	cal     *clock.Calendar
}

func NewBuilder(c *catalog.Catalog, cal *clock.Calendar) *Builder {
	return &Builder{catalog: c, cal: cal}
}

// Guards joins records with the catalog, keeps those on posts of region (all when
// empty) and sorts them by war name in pt-BR collation, senior rank first on ties.
// Records on posts missing from the catalog are left out.
func (b *Builder) Guards(records []models.PresenceRecord, region string) []GuardView {
	out := make([]GuardView, 0, len(records))
	for _, rec := range records {
		post, ok := b.catalog.Post(rec.HealthCenterID)
		if !ok || (region != "" && post.Region != region) {
			continue
		}
		insp, _ := b.catalog.Inspectorate(rec.InspectorateID)
		out = append(out, GuardView{
			ID:               rec.ID,
			WarName:          rec.WarName,
			Rank:             rec.Rank,
			InspectorateID:   rec.InspectorateID,
			HealthCenterID:   rec.HealthCenterID,
			PSUS:             rec.PSUS,
			Timestamp:        models.FormatTimestamp(rec.Timestamp),
			PostName:         post.Name,
			Region:           post.Region,
			InspectorateName: insp.Name,
			RankLabel:        rec.Rank.Label(),
			LocalTime:        rec.Timestamp.In(b.cal.Location()).Format(timeLayout),
		})
	}

	// collators are not safe for concurrent use
	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	slices.SortStableFunc(out, func(a, c GuardView) int {
		if n := col.CompareString(a.WarName, c.WarName); n != 0 {
			return n
		}
		if n := c.Rank.Seniority() - a.Rank.Seniority(); n != 0 {
			return n
		}
		return col.CompareString(a.PostName, c.PostName)
	})
	return out
}

// Summary computes the dashboard counters for region. Present and absent are taken
// over active posts; TotalPosts includes inactive ones.
func (b *Builder) Summary(records []models.PresenceRecord, region string) Summary {
	guards := b.Guards(records, region)
	covered := make(map[string]bool, len(guards))
	for _, g := range guards {
		covered[g.HealthCenterID] = true
	}

	s := Summary{
		Region: region,
		Date:   b.cal.Today(),
		Guards: guards,
	}

	posts := b.catalog.PostsIn(region)
	s.TotalPosts = len(posts)
	for _, p := range posts {
		if !p.Active() {
			continue
		}
		s.ActivePosts++
		if covered[p.ID] {
			s.Present++
		}
	}
	s.Absent = s.ActivePosts - s.Present
	s.Coverage = percentage(s.Present, s.ActivePosts)

	s.Inspectorates = b.inspectorates(guards, region)
	s.Regions = b.regions(records)
	return s
}

// inspectorates counts guards by the inspectorate they reported, against the
// active posts that inspectorate owns
func (b *Builder) inspectorates(guards []GuardView, region string) []InspectorateCount {
	list := b.catalog.InspectoratesIn(region)
	idx := make(map[string]int, len(list))
	out := make([]InspectorateCount, len(list))
	for i, insp := range list {
		idx[insp.ID] = i
		out[i] = InspectorateCount{ID: insp.ID, Name: insp.Name, Region: insp.Region}
	}

	for _, p := range b.catalog.PostsIn(region) {
		if i, ok := idx[p.Inspectorate]; ok && p.Active() {
			out[i].Total++
		}
	}
	for _, g := range guards {
		if i, ok := idx[g.InspectorateID]; ok {
			out[i].Present++
		}
	}
	return out
}

func (b *Builder) regions(records []models.PresenceRecord) []RegionCount {
	out := make([]RegionCount, len(b.catalog.Regions))
	idx := make(map[string]int, len(out))
	for i, r := range b.catalog.Regions {
		idx[r.ID] = i
		out[i] = RegionCount{ID: r.ID, Name: r.Name}
	}
	for _, p := range b.catalog.Posts {
		i := idx[p.Region]
		out[i].Posts++
		if p.Active() {
			out[i].Active++
		}
	}
	for _, rec := range records {
		if post, ok := b.catalog.Post(rec.HealthCenterID); ok {
			out[idx[post.Region]].Present++
		}
	}
	return out
}

// Map returns one pin per catalog post of region, inactive ones included
func (b *Builder) Map(records []models.PresenceRecord, region string) []Pin {
	byPost := make(map[string]models.PresenceRecord, len(records))
	for _, rec := range records {
		byPost[rec.HealthCenterID] = rec
	}

	posts := b.catalog.PostsIn(region)
	pins := make([]Pin, 0, len(posts))
	for _, p := range posts {
		pin := Pin{
			PostID:   p.ID,
			Name:     p.Name,
			Location: p.Location,
			Region:   p.Region,
			Row:      p.Coords.Row,
			Col:      p.Coords.Col,
			Active:   p.Active(),
		}
		if rec, ok := byPost[p.ID]; ok {
			insp, _ := b.catalog.Inspectorate(rec.InspectorateID)
			pin.Covered = true
			pin.WarName = rec.WarName
			pin.Rank = rec.Rank.Label()
			pin.InspectorateName = insp.Name
			pin.LocalTime = rec.Timestamp.In(b.cal.Location()).Format(timeLayout)
		}
		pins = append(pins, pin)
	}
	return pins
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
