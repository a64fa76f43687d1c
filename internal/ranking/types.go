// Package ranking scores and orders search candidates for a media item.
// Scoring is deterministic: the same query and candidate list always produce
// the same ordering.
package ranking

// Score caps per component. Total is the sum of the four components plus
// itemized bonuses.
const (
	MatchScoreCap  = 60.0
	FormatScoreCap = 10.0
	SizeScoreCap   = 15.0
	SeederScoreCap = 15.0
)

// Kind selects the format preference table.
type Kind string

const (
	KindAudiobook Kind = "audiobook"
	KindEbook     Kind = "ebook"
)

// Query describes the media item candidates are ranked against.
type Query struct {
	Title          string
	Author         string
	RuntimeMinutes int
	Kind           Kind
}

// Candidate is one release considered for a query.
type Candidate struct {
	GUID        string   `json:"guid"`
	Title       string   `json:"title"`
	Indexer     string   `json:"indexer"`
	IndexerID   int64    `json:"indexerId"`
	Size        int64    `json:"size"`
	Seeders     *int     `json:"seeders,omitempty"`
	Protocol    string   `json:"protocol"`
	DownloadURL string   `json:"downloadUrl"`
	Flags       []string `json:"flags,omitempty"`
}

// Bonus is one itemized score adjustment beyond the four capped components.
type Bonus struct {
	Reason string  `json:"reason"`
	Points float64 `json:"points"`
}

// RankedCandidate is a candidate with its score breakdown and final position.
type RankedCandidate struct {
	Candidate
	Rank        int     `json:"rank"`
	TotalScore  float64 `json:"totalScore"`
	MatchScore  float64 `json:"matchScore"`
	FormatScore float64 `json:"formatScore"`
	SizeScore   float64 `json:"sizeScore"`
	SeederScore float64 `json:"seederScore"`
	Bonuses     []Bonus `json:"bonuses,omitempty"`
}

// Config tunes the ranking engine. Zero values fall back to defaults.
type Config struct {
	// RequireAuthor excludes candidates whose title carries no author token.
	RequireAuthor bool
	// StopWords are removed from titles before matching, in addition to the
	// built-in set.
	StopWords []string
	// CharacterReplacements are applied to titles before tokenizing,
	// e.g. "&" -> "and".
	CharacterReplacements map[string]string
	// FlagBonuses maps indexer flags (freeleech etc.) to bonus points.
	FlagBonuses map[string]float64
	// MinSizeMB is the size floor; smaller candidates are excluded outright.
	// Defaults to 20.
	MinSizeMB int
}

// DefaultMinSizeMB filters out samples, NFO-only uploads, and fakes.
const DefaultMinSizeMB = 20

func (c Config) minSizeBytes() int64 {
	mb := c.MinSizeMB
	if mb <= 0 {
		mb = DefaultMinSizeMB
	}
	return int64(mb) * 1024 * 1024
}
