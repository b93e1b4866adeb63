package skill

import (
	"container/heap"
	"sort"
)

// Options bound the inference traversal. Zero fields take the default value.
type Options struct {
	Decay         float64 `json:"decay"`
	MinConfidence float64 `json:"min_confidence"`
	MaxDepth      int     `json:"max_depth"`
	MaxNodes      int     `json:"max_nodes"`
}

func DefaultOptions() Options {
	return Options{Decay: 0.9, MinConfidence: 0.3, MaxDepth: 4, MaxNodes: 500}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Decay <= 0 || o.Decay > 1 {
		o.Decay = def.Decay
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = def.MinConfidence
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = def.MaxDepth
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = def.MaxNodes
	}
	return o
}

// Assessment is direct evidence about one skill.
type Assessment struct {
	SkillID      string  `json:"skill_id" validate:"required"`
	Confidence   float64 `json:"confidence" validate:"confidence"`
	Demonstrated bool    `json:"demonstrated"`
}

// Inference is a skill state derived from evidence on Source.
// Path runs from Source to SkillID.
type Inference struct {
	SkillID      string   `json:"skill_id"`
	Confidence   float64  `json:"confidence"`
	Demonstrated bool     `json:"demonstrated"`
	Source       string   `json:"source"`
	Depth        int      `json:"depth"`
	Path         []string `json:"path"`
}

type Result struct {
	// Inferred is sorted by confidence (desc) then skill ID.
	Inferred []Inference `json:"inferred"`
	// Unknown lists evidence skill IDs missing from the graph.
	Unknown []string `json:"unknown,omitempty"`
	// Truncated is set when MaxNodes stopped the traversal.
	Truncated bool `json:"truncated,omitempty"`
}

func (r Result) Get(id string) (Inference, bool) {
	for _, inf := range r.Inferred {
		if inf.SkillID == id {
			return inf, true
		}
	}
	return Inference{}, false
}

type candidate struct {
	id     string
	conf   float64
	depth  int
	source string
	path   []string
}

type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].conf != h[j].conf {
		return h[i].conf > h[j].conf
	}
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].id < h[j].id
}
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// Infer propagates evidence over the graph.
//
// Demonstrated skills imply their prerequisites; gaps imply gaps in their dependents.
// Each hop multiplies confidence by the edge confidence and opts.Decay. Only
// prerequisite edges propagate. Directly assessed skills are never inferred and
// a demonstrated inference always wins over a gap on the same skill. When a skill
// is assessed more than once the last assessment counts.
func Infer(g *Graph, evidence []Assessment, opts Options) Result {
	g.ensureIndex()
	opts = opts.withDefaults()

	var res Result
	assessed := make(map[string]Assessment, len(evidence))
	unknown := make(map[string]bool)
	for _, a := range evidence {
		if !g.Has(a.SkillID) {
			if !unknown[a.SkillID] {
				unknown[a.SkillID] = true
				res.Unknown = append(res.Unknown, a.SkillID)
			}
			continue
		}
		assessed[a.SkillID] = a
	}
	sort.Strings(res.Unknown)

	budget := opts.MaxNodes
	positive, truncated := propagate(g, assessed, true, opts, &budget)
	res.Truncated = truncated
	negative, truncated := propagate(g, assessed, false, opts, &budget)
	res.Truncated = res.Truncated || truncated

	for _, inf := range positive {
		res.Inferred = append(res.Inferred, inf)
	}
	for id, inf := range negative {
		if _, ok := positive[id]; ok {
			continue
		}
		res.Inferred = append(res.Inferred, inf)
	}
	sort.Slice(res.Inferred, func(i, j int) bool {
		a, b := res.Inferred[i], res.Inferred[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.SkillID < b.SkillID
	})
	return res
}

// propagate runs one bounded best-first traversal from the assessed skills of the given polarity.
func propagate(g *Graph, assessed map[string]Assessment, demonstrated bool, opts Options, budget *int) (map[string]Inference, bool) {
	h := make(candidateHeap, 0, len(assessed))
	for id, a := range assessed {
		if a.Demonstrated == demonstrated && a.Confidence > 0 {
			h = append(h, candidate{id: id, conf: a.Confidence, source: id, path: []string{id}})
		}
	}
	heap.Init(&h)

	out := make(map[string]Inference)
	finalized := make(map[string]bool)
	best := make(map[string]float64)

	for h.Len() > 0 {
		c := heap.Pop(&h).(candidate)
		if finalized[c.id] {
			continue // stale entry
		}
		if *budget <= 0 {
			return out, true
		}
		finalized[c.id] = true
		*budget--

		if c.depth > 0 {
			out[c.id] = Inference{
				SkillID:      c.id,
				Confidence:   round(c.conf),
				Demonstrated: demonstrated,
				Source:       c.source,
				Depth:        c.depth,
				Path:         c.path,
			}
		}
		if c.depth >= opts.MaxDepth {
			continue
		}

		var edges []Edge
		if demonstrated {
			edges = g.Prerequisites(c.id)
		} else {
			edges = g.Dependents(c.id)
		}
		for _, e := range edges {
			if !e.IsPrerequisite() {
				continue
			}
			next := e.Source
			if !demonstrated {
				next = e.Target
			}
			if finalized[next] {
				continue
			}
			if _, ok := assessed[next]; ok {
				continue
			}
			conf := c.conf * e.Confidence * opts.Decay
			if conf < opts.MinConfidence || conf <= best[next] {
				continue
			}
			best[next] = conf
			path := make([]string, len(c.path), len(c.path)+1)
			copy(path, c.path)
			heap.Push(&h, candidate{
				id:     next,
				conf:   conf,
				depth:  c.depth + 1,
				source: c.source,
				path:   append(path, next),
			})
		}
	}
	return out, false
}

func round(f float64) float64 {
	const p = 1e4
	return float64(int64(f*p+0.5)) / p
}
