// Algorithms implements C5: PageRank, bounded BFS, Jaccard similarity, tag
// aggregation, timeline bucketing, and avatar hue inheritance. Every
// function here is pure: it consumes whatever graph or data it is given
// and never performs I/O or raises an error — callers are responsible for
// validating input shape before calling in.
package service

import (
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"
)

const pageRankTolerance = 1e-6

// PageRankMap is the derived address -> score distribution; scores sum to
// 1 (within float tolerance) across the population.
type PageRankMap map[string]float64

// PageRankEntry pairs a node with its score for the sorted output list.
type PageRankEntry struct {
	Node  string
	Score float64
}

// PageRank runs power iteration over g with damping factor d, stopping at
// maxIterations or once every score moves by less than 1e-6 between
// rounds. Returns the score map and the descending-sorted entry list.
func PageRank(g *Graph, d float64, maxIterations int) (PageRankMap, []PageRankEntry) {
	n := len(g.Nodes)
	if n == 0 {
		return PageRankMap{}, nil
	}

	nodes := make([]string, 0, n)
	for id := range g.Nodes {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes) // deterministic iteration order

	score := make(PageRankMap, n)
	for _, v := range nodes {
		score[v] = 1.0 / float64(n)
	}

	for iter := 0; iter < maxIterations; iter++ {
		next := make(PageRankMap, n)
		for _, v := range nodes {
			next[v] = (1 - d) / float64(n)
		}

		for _, u := range nodes {
			neighbors := g.OutEdges[u]
			if len(neighbors) == 0 {
				continue
			}
			total := 0
			for _, nb := range neighbors {
				total += nb.Weight
			}
			if total == 0 {
				continue
			}
			for _, nb := range neighbors {
				next[nb.Node] += d * score[u] * (float64(nb.Weight) / float64(total))
			}
		}

		maxDelta := 0.0
		for _, v := range nodes {
			delta := math.Abs(next[v] - score[v])
			if delta > maxDelta {
				maxDelta = delta
			}
		}
		score = next
		if maxDelta < pageRankTolerance {
			break
		}
	}

	entries := make([]PageRankEntry, 0, n)
	for _, v := range nodes {
		entries = append(entries, PageRankEntry{Node: v, Score: score[v]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Node < entries[j].Node
	})

	return score, entries
}

// MaxBFSNodes bounds the bounded-BFS traversal budget for trust-path
// queries; visiting more nodes than this aborts as not-found.
const MaxBFSNodes = 5000

// TrustPathResult is the outcome of a bounded-BFS shortest-path query.
type TrustPathResult struct {
	Path  []string
	Depth int
	Found bool
}

// TrustPath finds the shortest path from source to target on g (typically
// the attestation graph) within maxDepth hops, clamped to [1, 10].
// Visiting more than MaxBFSNodes distinct states aborts with Found=false.
// Tie-breaking among equal-length paths follows adjacency insertion order,
// making the result deterministic for a given graph construction order.
func TrustPath(g *Graph, source, target string, maxDepth int) TrustPathResult {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 10 {
		maxDepth = 10
	}

	if source == target {
		return TrustPathResult{Path: []string{source}, Depth: 0, Found: true}
	}

	visited := map[string]bool{source: true}
	parent := map[string]string{}
	queue := []string{source}
	depthOf := map[string]int{source: 0}

	visitedCount := 1
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if depthOf[cur] >= maxDepth {
			continue
		}

		for _, nb := range g.OutEdges[cur] {
			if visited[nb.Node] {
				continue
			}
			visited[nb.Node] = true
			visitedCount++
			if visitedCount > MaxBFSNodes {
				return TrustPathResult{Found: false}
			}
			parent[nb.Node] = cur
			depthOf[nb.Node] = depthOf[cur] + 1

			if nb.Node == target {
				return TrustPathResult{
					Path:  reconstructPath(parent, source, target),
					Depth: depthOf[nb.Node],
					Found: true,
				}
			}
			queue = append(queue, nb.Node)
		}
	}

	return TrustPathResult{Found: false}
}

func reconstructPath(parent map[string]string, source, target string) []string {
	path := []string{target}
	cur := target
	for cur != source {
		cur = parent[cur]
		path = append([]string{cur}, path...)
	}
	return path
}

// Jaccard returns |a ∩ b| / |a ∪ b| for two author sets.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// WeightedTrust computes trust = min(weightedSum/trustThreshold, 1) * 100,
// where weightedSum sums the PageRank of every active attester whose score
// clears floor.
func WeightedTrust(attesterScores []float64, floor, trustThreshold float64) float64 {
	var sum float64
	for _, pr := range attesterScores {
		if pr >= floor {
			sum += pr
		}
	}
	trust := sum / trustThreshold
	if trust > 1 {
		trust = 1
	}
	return trust * 100
}

// VoterVote pairs a voter's PageRank score with the up- and downvotes they
// have cast on one author's content.
type VoterVote struct {
	VoterPageRank float64
	Upvotes       int
	Downvotes     int
}

// WeightedQuality computes quality from a PageRank-weighted vote tally;
// zero-post agents return the neutral 50.
func WeightedQuality(votes []VoterVote, postCount int, floor, qualityScalingFactor float64) float64 {
	if postCount == 0 {
		return 50
	}
	var sum float64
	for _, v := range votes {
		if v.VoterPageRank >= floor {
			sum += v.VoterPageRank * float64(v.Upvotes-v.Downvotes)
		}
	}
	quality := 50 + (sum/float64(postCount))*qualityScalingFactor
	return clamp(quality, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// round2 rounds to two decimal places, the output precision spec.md
// requires for every reputation component and the overall score.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TagCount is one aggregated tag-cloud entry.
type TagCount struct {
	Tag        string
	Count      int
	TotalScore int
}

var controlOrBidiOrZeroWidth = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F\x{200B}-\x{200F}\x{202A}-\x{202E}\x{2060}-\x{2069}\x{FEFF}]`)

// SanitizeTag strips C0/C1 controls, bidi overrides, and zero-width
// characters, trims whitespace, lowercases, and truncates to 50 runes.
func SanitizeTag(raw string) string {
	cleaned := controlOrBidiOrZeroWidth.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ToLower(cleaned)
	runes := []rune(cleaned)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return string(runes)
}

// TaggedPost is the minimal shape TagCloud and ConceptTimeline need from a
// post.
type TaggedPost struct {
	Tags      []string
	Score     int
	Timestamp int64 // unix seconds
}

// TagCloud sanitises and aggregates tags across posts, returning the top
// limit tags by count descending.
func TagCloud(posts []TaggedPost, limit int) []TagCount {
	counts := make(map[string]*TagCount)
	order := make([]string, 0)
	for _, p := range posts {
		for _, raw := range p.Tags {
			tag := SanitizeTag(raw)
			if tag == "" {
				continue
			}
			tc, ok := counts[tag]
			if !ok {
				tc = &TagCount{Tag: tag}
				counts[tag] = tc
				order = append(order, tag)
			}
			tc.Count++
			tc.TotalScore += p.Score
		}
	}

	results := make([]TagCount, 0, len(order))
	for _, tag := range order {
		results = append(results, *counts[tag])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Count > results[j].Count
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// TimelineBucket is one day-bucketed rollup for a concept timeline.
type TimelineBucket struct {
	Timestamp int64
	Count     int
	TotalScore int
}

const secondsPerDay = 86400

// ConceptTimeline buckets posts whose normalised tag list contains target
// by UTC day, returning buckets ordered ascending plus the total matching
// post count.
func ConceptTimeline(posts []TaggedPost, target string) ([]TimelineBucket, int) {
	target = SanitizeTag(target)
	buckets := make(map[int64]*TimelineBucket)
	order := make([]int64, 0)
	total := 0

	for _, p := range posts {
		matched := false
		for _, raw := range p.Tags {
			if SanitizeTag(raw) == target {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		total++
		day := (p.Timestamp / secondsPerDay) * secondsPerDay
		b, ok := buckets[day]
		if !ok {
			b = &TimelineBucket{Timestamp: day}
			buckets[day] = b
			order = append(order, day)
		}
		b.Count++
		b.TotalScore += p.Score
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	result := make([]TimelineBucket, 0, len(order))
	for _, day := range order {
		result = append(result, *buckets[day])
	}
	return result, total
}

// Bridge is a content item whose outgoing citations touch both of two
// target communities.
type Bridge struct {
	CID             string
	QualifyingCount int
}

// CitationBridges finds content items in cg whose outgoing citations reach
// both communityA and communityB (order-insensitive), ranked by count of
// qualifying citations.
func CitationBridges(cg CitationGraph, communityA, communityB string) []Bridge {
	results := make([]Bridge, 0)
	for cid, edges := range cg.Graph.OutEdges {
		touchesA, touchesB := false, false
		qualifying := 0
		for _, e := range edges {
			c := cg.CommunityOf[e.Node]
			if c == communityA {
				touchesA = true
				qualifying++
			}
			if c == communityB {
				touchesB = true
				qualifying++
			}
		}
		if touchesA && touchesB {
			results = append(results, Bridge{CID: cid, QualifyingCount: qualifying})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].QualifyingCount != results[j].QualifyingCount {
			return results[i].QualifyingCount > results[j].QualifyingCount
		}
		return results[i].CID < results[j].CID
	})
	return results
}

// Avatar describes an agent's generated avatar.
type Avatar struct {
	HexColor   string
	Complexity int // [1,5]
	Palette    string
	Shape      string
}

// AvatarOverride carries explicit child overrides; a nil field inherits
// from the parent.
type AvatarOverride struct {
	HexColor   *string
	Complexity *int
	Palette    *string
	Shape      *string
}

// InheritAvatar shifts the parent's hue by a value drawn uniformly from
// [15°, 30°], mutates complexity by ±1 bounded to [1,5], and inherits
// palette/shape unless the child supplies an explicit override, in which
// case the override is used verbatim for that field.
func InheritAvatar(parent Avatar, override AvatarOverride, rng *rand.Rand) Avatar {
	child := Avatar{Palette: parent.Palette, Shape: parent.Shape}

	if override.HexColor != nil {
		child.HexColor = *override.HexColor
	} else {
		shift := 15 + rng.Float64()*15
		child.HexColor = shiftHue(parent.HexColor, shift)
	}

	if override.Complexity != nil {
		child.Complexity = *override.Complexity
	} else {
		delta := -1
		if rng.Intn(2) == 1 {
			delta = 1
		}
		child.Complexity = clampInt(parent.Complexity+delta, 1, 5)
	}

	if override.Palette != nil {
		child.Palette = *override.Palette
	}
	if override.Shape != nil {
		child.Shape = *override.Shape
	}

	return child
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// shiftHue converts a #rrggbb hex color to HSL, adds shiftDegrees to the
// hue (wrapping at 360), and converts back to hex.
func shiftHue(hex string, shiftDegrees float64) string {
	r, g, b := hexToRGB(hex)
	h, s, l := rgbToHSL(r, g, b)
	h = math.Mod(h+shiftDegrees, 360)
	if h < 0 {
		h += 360
	}
	nr, ng, nb := hslToRGB(h, s, l)
	return rgbToHex(nr, ng, nb)
}

func hexToRGB(hex string) (float64, float64, float64) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	var r, g, b int64
	_, _ = parseHexByte(hex[0:2], &r)
	_, _ = parseHexByte(hex[2:4], &g)
	_, _ = parseHexByte(hex[4:6], &b)
	return float64(r) / 255, float64(g) / 255, float64(b) / 255
}

func parseHexByte(s string, dst *int64) (int, error) {
	var v int64
	for _, c := range s {
		v *= 16
		switch {
		case c >= '0' && c <= '9':
			v += int64(c - '0')
		case c >= 'a' && c <= 'f':
			v += int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v += int64(c-'A') + 10
		}
	}
	*dst = v
	return 0, nil
}

func rgbToHSL(r, g, b float64) (float64, float64, float64) {
	maxV := math.Max(r, math.Max(g, b))
	minV := math.Min(r, math.Min(g, b))
	l := (maxV + minV) / 2

	if maxV == minV {
		return 0, 0, l
	}

	d := maxV - minV
	var s float64
	if l > 0.5 {
		s = d / (2 - maxV - minV)
	} else {
		s = d / (maxV + minV)
	}

	var h float64
	switch maxV {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, l
}

func hslToRGB(h, s, l float64) (float64, float64, float64) {
	if s == 0 {
		return l, l, l
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	r := hueToRGB(p, q, h/360+1.0/3)
	g := hueToRGB(p, q, h/360)
	b := hueToRGB(p, q, h/360-1.0/3)
	return r, g, b
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

func rgbToHex(r, g, b float64) string {
	const hexDigits = "0123456789abcdef"
	toByte := func(v float64) int {
		n := int(math.Round(v * 255))
		if n < 0 {
			n = 0
		}
		if n > 255 {
			n = 255
		}
		return n
	}
	var sb strings.Builder
	sb.WriteByte('#')
	for _, v := range []float64{r, g, b} {
		n := toByte(v)
		sb.WriteByte(hexDigits[n/16])
		sb.WriteByte(hexDigits[n%16])
	}
	return sb.String()
}
