package ranking

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Protocol values candidates arrive with.
const (
	ProtocolTorrent = "torrent"
	ProtocolUsenet  = "usenet"
)

// Format preference tables. The highest-scoring format token found in the
// candidate title wins; titles naming no known format score the unknown value.
var (
	audiobookFormats = map[string]float64{
		"m4b":  10,
		"m4a":  8,
		"mp3":  6,
		"flac": 5,
		"aac":  4,
		"ogg":  3,
		"opus": 3,
	}
	ebookFormats = map[string]float64{
		"epub": 10,
		"azw3": 7,
		"mobi": 6,
		"pdf":  3,
	}
	unknownFormatScore = 2.0
)

// Size-per-minute band for audiobooks, in MB per runtime minute. Candidates
// inside the band score the full size component; outside it the score falls
// off linearly to zero at the hard bounds.
const (
	sizeBandLowMBPerMin  = 0.4
	sizeBandHighMBPerMin = 1.6
	sizeHardLowMBPerMin  = 0.1
	sizeHardHighMBPerMin = 5.0
)

// seederSaturation is the seeder count at which the seeder component maxes out.
const seederSaturation = 50

// usenetSeederScore is the fixed neutral seeder component for usenet releases,
// which have no swarm.
const usenetSeederScore = 10.0

// Engine ranks candidates for a query.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates a ranking engine.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "ranking").Logger(),
	}
}

// Rank scores and orders candidates for the query. Candidates below the size
// floor, and (when RequireAuthor is set) candidates with no author token, are
// excluded. indexerPriorities maps indexer IDs to their configured priority
// (1 most preferred, 25 least; unknown indexers default to 10).
func (e *Engine) Rank(query Query, candidates []Candidate, indexerPriorities map[int64]int) []RankedCandidate {
	norm := newNormalizer(e.cfg)
	queryTokens := norm.tokens(query.Title)
	authorTokens := norm.tokens(query.Author)
	minSize := e.cfg.minSizeBytes()

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Size < minSize {
			e.logger.Debug().Str("title", c.Title).Int64("size", c.Size).
				Msg("Excluding candidate below size floor")
			continue
		}

		candTokens := norm.tokens(c.Title)
		if e.cfg.RequireAuthor && len(authorTokens) > 0 &&
			!containsAuthorToken(authorTokens, candTokens) {
			e.logger.Debug().Str("title", c.Title).
				Msg("Excluding candidate missing author")
			continue
		}

		rc := RankedCandidate{
			Candidate:   c,
			MatchScore:  coverage(queryTokens, candTokens) * MatchScoreCap,
			FormatScore: formatScore(query.Kind, candTokens),
			SizeScore:   sizeScore(query, c.Size),
			SeederScore: seederScore(c),
			Bonuses:     e.bonuses(c, indexerPriorities),
		}
		rc.TotalScore = rc.MatchScore + rc.FormatScore + rc.SizeScore + rc.SeederScore
		for _, b := range rc.Bonuses {
			rc.TotalScore += b.Points
		}
		ranked = append(ranked, rc)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		if ranked[i].SeederScore != ranked[j].SeederScore {
			return ranked[i].SeederScore > ranked[j].SeederScore
		}
		pi := priorityFor(ranked[i].IndexerID, indexerPriorities)
		pj := priorityFor(ranked[j].IndexerID, indexerPriorities)
		if pi != pj {
			return pi < pj
		}
		return ranked[i].GUID < ranked[j].GUID
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func formatScore(kind Kind, candTokens map[string]struct{}) float64 {
	table := audiobookFormats
	if kind == KindEbook {
		table = ebookFormats
	}
	best := 0.0
	found := false
	for tok := range candTokens {
		if score, ok := table[tok]; ok {
			found = true
			if score > best {
				best = score
			}
		}
	}
	if !found {
		return unknownFormatScore
	}
	return best
}

// sizeScore scores how plausible the release size is for the runtime. With no
// runtime on record there is nothing to compare against and the component is
// zero.
func sizeScore(query Query, size int64) float64 {
	if query.RuntimeMinutes <= 0 {
		return 0
	}
	mbPerMin := float64(size) / (1024 * 1024) / float64(query.RuntimeMinutes)

	switch {
	case mbPerMin >= sizeBandLowMBPerMin && mbPerMin <= sizeBandHighMBPerMin:
		return SizeScoreCap
	case mbPerMin < sizeBandLowMBPerMin:
		if mbPerMin <= sizeHardLowMBPerMin {
			return 0
		}
		return SizeScoreCap * (mbPerMin - sizeHardLowMBPerMin) / (sizeBandLowMBPerMin - sizeHardLowMBPerMin)
	default:
		if mbPerMin >= sizeHardHighMBPerMin {
			return 0
		}
		return SizeScoreCap * (sizeHardHighMBPerMin - mbPerMin) / (sizeHardHighMBPerMin - sizeBandHighMBPerMin)
	}
}

func seederScore(c Candidate) float64 {
	if c.Protocol == ProtocolUsenet {
		return usenetSeederScore
	}
	if c.Seeders == nil || *c.Seeders <= 0 {
		return 0
	}
	seeders := *c.Seeders
	if seeders > seederSaturation {
		seeders = seederSaturation
	}
	return float64(seeders) / seederSaturation * SeederScoreCap
}

func (e *Engine) bonuses(c Candidate, priorities map[int64]int) []Bonus {
	var bonuses []Bonus

	priority := priorityFor(c.IndexerID, priorities)
	if points := float64(25-priority) * 0.2; points > 0 {
		bonuses = append(bonuses, Bonus{
			Reason: fmt.Sprintf("indexer priority %d", priority),
			Points: points,
		})
	}

	for _, flag := range c.Flags {
		if points, ok := e.cfg.FlagBonuses[flag]; ok && points != 0 {
			bonuses = append(bonuses, Bonus{Reason: flag, Points: points})
		}
	}
	return bonuses
}

func priorityFor(indexerID int64, priorities map[int64]int) int {
	if p, ok := priorities[indexerID]; ok && p >= 1 && p <= 25 {
		return p
	}
	return 10
}
