package stage

import (
	"context"
	"sort"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/pipeline"
	"github.com/gofhir/codelists/rules"
)

// SynonymPair is an unordered pair of codes linked by synonymCode.
// Left always sorts before Right.
type SynonymPair struct {
	Left  string
	Right string
}

func newPair(a, b string) SynonymPair {
	if b < a {
		a, b = b, a
	}
	return SynonymPair{Left: a, Right: b}
}

// Resolution is the outcome of synonym resolution for one run.
type Resolution struct {
	// Concepts are the surviving concepts in input order
	Concepts []*concept.Aggregated
	// Dropped maps every removed code to the code kept in its place
	Dropped map[string]string
	// Unresolved lists the synonym pairs no override covers, sorted
	Unresolved []SynonymPair
}

// synonymGroups links codes through synonymCode with a union-find and
// returns the root of every code that takes part in a link.
type synonymGroups struct {
	parent map[string]string
}

func newSynonymGroups() *synonymGroups {
	return &synonymGroups{parent: make(map[string]string)}
}

func (g *synonymGroups) find(code string) string {
	root, ok := g.parent[code]
	if !ok {
		g.parent[code] = code
		return code
	}
	if root == code {
		return code
	}
	root = g.find(root)
	g.parent[code] = root
	return root
}

func (g *synonymGroups) union(a, b string) {
	ra, rb := g.find(a), g.find(b)
	if ra == rb {
		return
	}
	// smaller code wins so roots do not depend on link order
	if rb < ra {
		ra, rb = rb, ra
	}
	g.parent[rb] = ra
}

func (g *synonymGroups) has(code string) bool {
	_, ok := g.parent[code]
	return ok
}

// covers reports whether an override names both codes of p.
func covers(o rules.SynonymOverride, p SynonymPair) bool {
	member := func(code string) bool {
		if code == o.Keep {
			return true
		}
		for _, d := range o.Drop {
			if d == code {
				return true
			}
		}
		return false
	}
	return member(p.Left) && member(p.Right)
}

// ResolveSynonyms collapses synonym groups using the override table.
//
// Codes are grouped through their synonymCode links, including links to codes
// that are not among the concepts. An override applies only when its kept
// code is itself among the concepts; it then removes each of its dropped
// codes from the group holding the kept code. Every link that no applicable
// override names on both ends is reported as unresolved, and its concepts
// pass through.
func ResolveSynonyms(concepts []*concept.Aggregated, overrides []rules.SynonymOverride) Resolution {
	groups := newSynonymGroups()
	pairs := make(map[SynonymPair]struct{})
	present := make(map[string]struct{}, len(concepts))

	for _, c := range concepts {
		present[c.Code] = struct{}{}
	}
	applicable := make([]rules.SynonymOverride, 0, len(overrides))
	for _, o := range overrides {
		if _, ok := present[o.Keep]; ok {
			applicable = append(applicable, o)
		}
	}

	for _, c := range concepts {
		for _, other := range c.Multi(concept.PropSynonymCode).Sorted() {
			if other == c.Code {
				continue
			}
			groups.union(c.Code, other)
			pairs[newPair(c.Code, other)] = struct{}{}
		}
	}

	dropped := make(map[string]string)
	for _, o := range applicable {
		if !groups.has(o.Keep) {
			continue
		}
		root := groups.find(o.Keep)
		for _, d := range o.Drop {
			if groups.has(d) && groups.find(d) == root {
				dropped[d] = o.Keep
			}
		}
	}

	var unresolved []SynonymPair
	for p := range pairs {
		covered := false
		for _, o := range applicable {
			if covers(o, p) {
				covered = true
				break
			}
		}
		if !covered {
			unresolved = append(unresolved, p)
		}
	}
	sort.Slice(unresolved, func(i, j int) bool {
		if unresolved[i].Left != unresolved[j].Left {
			return unresolved[i].Left < unresolved[j].Left
		}
		return unresolved[i].Right < unresolved[j].Right
	})

	kept := make([]*concept.Aggregated, 0, len(concepts))
	for _, c := range concepts {
		if _, ok := dropped[c.Code]; ok {
			continue
		}
		kept = append(kept, c)
	}

	return Resolution{
		Concepts:   kept,
		Dropped:    dropped,
		Unresolved: unresolved,
	}
}

// SynonymStage resolves synonym groups for codelists that declare synonymCode.
type SynonymStage struct{}

// NewSynonymStage creates a new synonym resolution stage.
func NewSynonymStage() *SynonymStage {
	return &SynonymStage{}
}

// Name returns the stage name.
func (s *SynonymStage) Name() string {
	return string(pipeline.StageIDSynonyms)
}

// Run resolves rctx.Eligible into rctx.Resolved.
func (s *SynonymStage) Run(ctx context.Context, rctx *pipeline.Context) ([]cl.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !rctx.Rules.DeclaresSynonyms() {
		rctx.Resolved = rctx.Eligible
		return nil, nil
	}

	res := ResolveSynonyms(rctx.Eligible, rctx.Rules.Synonyms)
	rctx.Resolved = res.Concepts

	issues := make([]cl.Issue, 0, len(res.Unresolved)+len(res.Dropped))
	for _, p := range res.Unresolved {
		issues = append(issues, cl.Diagnostic(cl.DiagSynonymUnresolved, map[string]any{
			"left":  p.Left,
			"right": p.Right,
		}).Payload(p.Left, p.Right).Build())
	}

	if rctx.Options == nil || rctx.Options.ReportDrops {
		codes := make([]string, 0, len(res.Dropped))
		for code := range res.Dropped {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			issues = append(issues, cl.Diagnostic(cl.DiagSynonymDropped, map[string]any{
				"code": code,
				"keep": res.Dropped[code],
			}).Payload(code, res.Dropped[code]).Build())
		}
	}

	return issues, nil
}

// SynonymStageConfig returns the pipeline configuration for synonym resolution.
func SynonymStageConfig() *pipeline.StageConfig {
	return &pipeline.StageConfig{
		Stage:    NewSynonymStage(),
		Priority: pipeline.PrioritySynonyms,
		Required: true,
		Enabled:  true,
	}
}
