package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/starford/opscore/internal/apperr"
)

// Validate checks a candidate at an input boundary. Rank itself clamps instead.
func (c Candidate) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Domain, validation.Required),
		validation.Field(&c.EntityRef, validation.Required),
		validation.Field(&c.Impact, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Urgency, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Controllability, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Confidence, validation.Required),
	)
}

// candidateDoc is the file form of a Candidate. Urgency may be left out when
// hours_to_consequence is given, in which case it is derived.
type candidateDoc struct {
	Candidate `yaml:",inline"`
	Urgency   *float64 `yaml:"urgency"`
}

type candidateFile struct {
	Candidates []candidateDoc `yaml:"candidates"`
}

// LoadCandidates decodes and validates a YAML candidate list of the form
// `candidates: [...]`.
func LoadCandidates(r io.Reader) ([]Candidate, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f candidateFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ranking: decode candidates: %w", err)
	}

	out := make([]Candidate, 0, len(f.Candidates))
	for i, d := range f.Candidates {
		c := d.Candidate
		switch {
		case d.Urgency != nil:
			c.Urgency = *d.Urgency
		case c.HoursToConsequence != nil:
			c.Urgency = UrgencyFromHours(*c.HoursToConsequence)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("ranking: candidate %d (%s): %v: %w", i, c.EntityRef, err, apperr.ErrInvalidArgument)
		}
		out = append(out, c)
	}
	return out, nil
}

// LoadCandidatesFile reads candidates from a YAML file.
func LoadCandidatesFile(path string) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ranking: open candidates: %w", err)
	}
	defer f.Close()
	return LoadCandidates(f)
}

// Source produces one domain's candidates.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// StaticSource is a fixed candidate list.
type StaticSource []Candidate

func (s StaticSource) Candidates(context.Context) ([]Candidate, error) {
	return s, nil
}

// FileSource loads candidates from a YAML file on each call.
type FileSource string

func (f FileSource) Candidates(ctx context.Context) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadCandidatesFile(string(f))
}

// RankSources collects candidates from every source concurrently, then merges them
// in source order and ranks the result. The first failing source aborts the ranking.
func RankSources(ctx context.Context, sources []Source, p Profile, h Horizon, maxItems int) ([]Ranked, error) {
	lists := make([][]Candidate, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	for i, s := range sources {
		g.Go(func() error {
			cs, err := s.Candidates(gCtx)
			if err != nil {
				return fmt.Errorf("ranking: source %d: %w", i, err)
			}
			lists[i] = cs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Candidate
	for _, cs := range lists {
		merged = append(merged, cs...)
	}
	return Rank(merged, p, h, maxItems), nil
}
