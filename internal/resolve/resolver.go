// Package resolve maps raw outcome labels from independent feeds onto
// canonical team names and canonical event identities. Resolution is
// exact-first, then alias substitution, then fuzzy similarity with a
// deterministic tie-break; it never fails, minting a new identity when
// nothing known matches.
package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"github.com/adrg/strutil/metrics"
	"github.com/alanyoungcy/surebetbot/internal/domain"
)

const exactScore = 100.0

// Config tunes the matching thresholds.
type Config struct {
	// MatchRatio is the fuzzy acceptance threshold on a 0-100 scale.
	MatchRatio float64
	// AmbiguityMargin is the score distance within which a runner-up makes
	// the top candidate ambiguous, forcing the tie-break.
	AmbiguityMargin float64
	// SimilarThreshold (0-1) gates the secondary near-identity check used
	// when the edit ratio misses abbreviation patterns.
	SimilarThreshold float64
}

// Resolution is the outcome of resolving one label pair.
type Resolution struct {
	Key      domain.EventKey
	SideA    string // canonical labels, lexicographically ordered
	SideB    string
	Swapped  bool // the quote's outcomeA corresponds to SideB
	NewEvent bool // this pair minted a new event identity
	Fuzzy    bool // at least one side matched via similarity
	Score    float64
}

type teamEntry struct {
	name     string
	lastSeen time.Time
}

type eventEntry struct {
	key      domain.EventKey
	lastSeen time.Time
}

// Resolver owns the canonical-name registry and the alias table. It is
// process-scoped state injected at construction and is not safe for
// concurrent use; the engine serializes access.
type Resolver struct {
	cfg     Config
	aliases *AliasTable
	lev     *metrics.Levenshtein
	dice    *metrics.SorensenDice
	teams   map[string]*teamEntry
	events  map[string]*eventEntry // "sideA|sideB" -> identity
	fuzzyN  int64
	logger  *slog.Logger
}

// New creates a Resolver with an empty registry.
func New(cfg Config, aliases *AliasTable, logger *slog.Logger) *Resolver {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Resolver{
		cfg:     cfg,
		aliases: aliases,
		lev:     metrics.NewLevenshtein(),
		dice:    metrics.NewSorensenDice(),
		teams:   make(map[string]*teamEntry),
		events:  make(map[string]*eventEntry),
		logger:  logger.With(slog.String("component", "resolver")),
	}
}

// Resolve maps a raw label pair to its canonical event identity, registering
// any newly seen names. The pair is unordered: Resolve(a, b) and
// Resolve(b, a) yield the same key. The only error is a degenerate pair
// whose labels collapse onto one canonical name.
func (r *Resolver) Resolve(labelA, labelB string, now time.Time) (Resolution, error) {
	normA := r.aliases.Apply(Normalize(labelA))
	normB := r.aliases.Apply(Normalize(labelB))
	if normA == "" || normB == "" {
		return Resolution{}, &domain.ValidationError{
			Field:  "outcomeA",
			Reason: "outcome label normalizes to empty",
		}
	}

	matchA := r.lookup(normA, "")
	matchB := r.lookup(normB, matchA.name)
	if matchA.name == matchB.name {
		return Resolution{}, &domain.ValidationError{
			Field:  "outcomeB",
			Reason: "outcome labels resolve to the same identity",
		}
	}

	r.touchTeam(matchA.name, now)
	r.touchTeam(matchB.name, now)

	sideA, sideB := matchA.name, matchB.name
	swapped := false
	if sideB < sideA {
		sideA, sideB = sideB, sideA
		swapped = true
	}

	pair := sideA + "|" + sideB
	ev, known := r.events[pair]
	if !known {
		ev = &eventEntry{key: pairKey(sideA, sideB)}
		r.events[pair] = ev
	}
	ev.lastSeen = now

	res := Resolution{
		Key:      ev.key,
		SideA:    sideA,
		SideB:    sideB,
		Swapped:  swapped,
		NewEvent: !known,
		Fuzzy:    matchA.fuzzy || matchB.fuzzy,
		Score:    exactScore,
	}
	if matchA.fuzzy && matchA.score < res.Score {
		res.Score = matchA.score
	}
	if matchB.fuzzy && matchB.score < res.Score {
		res.Score = matchB.score
	}
	if res.Fuzzy {
		r.fuzzyN++
	}
	return res, nil
}

type labelMatch struct {
	name  string
	fuzzy bool
	score float64
}

// lookup finds the canonical name for one normalized label without mutating
// the registry. exclude prevents the second side of a pair from landing on
// the first side's name.
func (r *Resolver) lookup(norm, exclude string) labelMatch {
	if _, ok := r.teams[norm]; ok && norm != exclude {
		return labelMatch{name: norm, score: exactScore}
	}

	type scored struct {
		name     string
		score    float64
		lastSeen time.Time
	}
	cands := make([]scored, 0, len(r.teams))
	for name, t := range r.teams {
		if name == exclude {
			continue
		}
		cands = append(cands, scored{name: name, score: Similarity(norm, name, r.lev), lastSeen: t.lastSeen})
	}
	if len(cands) == 0 {
		return labelMatch{name: norm}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].name < cands[j].name
	})
	top := cands[0]

	if top.score >= r.cfg.MatchRatio {
		// Collect every candidate within the ambiguity margin of the top
		// score. More than one means the match is ambiguous and the
		// deterministic tie-break decides: most recently seen wins, then
		// higher score, then lexicographic order.
		window := []scored{top}
		for _, c := range cands[1:] {
			if top.score-c.score < r.cfg.AmbiguityMargin {
				window = append(window, c)
			}
		}
		winner := top
		if len(window) > 1 {
			sort.Slice(window, func(i, j int) bool {
				if !window[i].lastSeen.Equal(window[j].lastSeen) {
					return window[i].lastSeen.After(window[j].lastSeen)
				}
				if window[i].score != window[j].score {
					return window[i].score > window[j].score
				}
				return window[i].name < window[j].name
			})
			winner = window[0]

			names := make([]string, len(window))
			for i, c := range window {
				names[i] = c.name
			}
			ambig := &domain.AmbiguousMatchError{Label: norm, Candidates: names}
			r.logger.Debug("fuzzy match ambiguous, tie-break applied",
				slog.String("label", norm),
				slog.String("winner", winner.name),
				slog.String("detail", ambig.Error()))
		}
		return labelMatch{name: winner.name, fuzzy: true, score: winner.score}
	}

	// Secondary check: abbreviation-style spellings the edit ratio misses.
	if AreSimilar(norm, top.name, r.dice, r.cfg.SimilarThreshold) {
		return labelMatch{name: top.name, fuzzy: true, score: top.score}
	}

	return labelMatch{name: norm}
}

func (r *Resolver) touchTeam(name string, now time.Time) {
	if t, ok := r.teams[name]; ok {
		t.lastSeen = now
		return
	}
	r.teams[name] = &teamEntry{name: name, lastSeen: now}
}

// Prune drops teams and event identities last seen before cutoff. Event keys
// are derived purely from canonical names, so a pruned identity that comes
// back later reproduces the same key and rejoins its group.
func (r *Resolver) Prune(cutoff time.Time) (teams, events int) {
	for name, t := range r.teams {
		if t.lastSeen.Before(cutoff) {
			delete(r.teams, name)
			teams++
		}
	}
	for pair, ev := range r.events {
		if ev.lastSeen.Before(cutoff) {
			delete(r.events, pair)
			events++
		}
	}
	return teams, events
}

// Similar runs the secondary near-identity check between two raw labels at
// the configured threshold. The engine uses it to sanity-check same-source
// records that arrive under a new source event id.
func (r *Resolver) Similar(a, b string) bool {
	return AreSimilar(r.aliases.Apply(Normalize(a)), r.aliases.Apply(Normalize(b)), r.dice, r.cfg.SimilarThreshold)
}

// KnownTeams reports the registry size.
func (r *Resolver) KnownTeams() int { return len(r.teams) }

// FuzzyMatches reports how many resolutions needed the similarity path.
func (r *Resolver) FuzzyMatches() int64 { return r.fuzzyN }

// pairKey derives the stable event identity for an ordered canonical pair.
func pairKey(sideA, sideB string) domain.EventKey {
	sum := sha256.Sum256([]byte(sideA + "|" + sideB))
	return domain.EventKey(hex.EncodeToString(sum[:8]))
}
