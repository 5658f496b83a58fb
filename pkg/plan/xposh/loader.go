// Package xposh loads XML ("XPOSH") plan documents into a plan.Registry.
package xposh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
	"github.com/dd0wney/posh-debugger/pkg/plan"
)

// Document vocabulary.
const (
	tagActionPattern      = "ActionPattern"
	tagAction             = "Action"
	tagCompetenceElement  = "CompetenceElement"
	tagCompetenceElements = "CompetenceElements"
	tagCompetence         = "Competence"
	tagDriveElement       = "DriveElement"
	tagDriveElements      = "DriveElements"
	tagDrive              = "Drive"
	tagSenses             = "Senses"
	tagSense              = "Sense"
)

// Stats summarizes one load.
type Stats struct {
	Counts         map[plan.Category]int
	Synthesized    int
	DroppedSenses  int
	Duplicates     int
	MissingMembers int
	Duration       time.Duration
}

// Result is a successfully published graph and the statistics of its load.
type Result struct {
	Graph      *plan.Graph
	Generation uint64
	Stats      Stats
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMetrics records every load in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithLegacyReferenceScan declares every CompetenceElement and
// DriveElement node in the document, including the name-only references
// listed inside a Competence or Drive. Older tooling behaved this way; the
// references then replace the full declarations of the same name.
func WithLegacyReferenceScan() Option {
	return func(l *Loader) { l.legacyScan = true }
}

// Loader turns plan documents into published behavior graphs.
type Loader struct {
	registry   *plan.Registry
	logger     logging.Logger
	metrics    *metrics.Registry
	legacyScan bool
}

// NewLoader creates a loader that publishes into registry.
func NewLoader(registry *plan.Registry, opts ...Option) *Loader {
	l := &Loader{registry: registry}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrDefault(l.logger).With(logging.Component("xposh"))
	return l
}

// LoadFile reads and loads the plan document at path.
func (l *Loader) LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.record(false, 0, nil)
		return nil, plan.NewError("LoadFile").Context(path).Cause(fmt.Errorf("%w: %v", plan.ErrDocumentParse, err))
	}
	res, err := l.Load(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	l.logger.Info("plan loaded",
		logging.Path(path),
		logging.Uint64("generation", res.Generation),
		logging.Int("synthesized", res.Stats.Synthesized),
		logging.Latency(res.Stats.Duration))
	return res, nil
}

// Load parses a plan document from r, builds its graph in two passes and
// publishes it. A malformed document, or an unparseable checkTime, fails
// the whole load with nothing published.
func (l *Loader) Load(r io.Reader) (*Result, error) {
	start := time.Now()
	stats := Stats{}

	root, err := parseDocument(r)
	if err != nil {
		l.record(false, time.Since(start), nil)
		return nil, plan.NewError("Load").Cause(fmt.Errorf("%w: %v", plan.ErrDocumentParse, err))
	}

	g, err := l.registry.Load(func(g *plan.Graph) error {
		return l.build(g, root, &stats)
	})
	stats.Duration = time.Since(start)
	if err != nil {
		l.record(false, stats.Duration, nil)
		return nil, err
	}

	stats.Counts = g.Counts()
	stats.Synthesized = g.Synthesized()
	l.record(true, stats.Duration, g)
	return &Result{Graph: g, Generation: g.Generation(), Stats: stats}, nil
}

func (l *Loader) record(success bool, d time.Duration, g *plan.Graph) {
	if l.metrics == nil {
		return
	}
	if g == nil {
		l.metrics.RecordPlanLoad(success, d, nil, 0, 0)
		return
	}
	counts := make(map[string]int, len(plan.Categories))
	for c, n := range g.Counts() {
		counts[c.String()] = n
	}
	l.metrics.RecordPlanLoad(success, d, counts, g.Synthesized(), g.Generation())
}

// build runs the declare pass in dependency order and then links the
// competence elements. Drive elements resolve their triggers while being
// declared, so they must come after everything they can target.
func (l *Loader) build(g *plan.Graph, root *node, stats *Stats) error {
	l.declareActionPatterns(g, root, stats)
	ces := l.declareCompetenceElements(g, root, stats)
	l.declareCompetences(g, root, stats)
	if err := l.declareDriveElements(g, root, stats); err != nil {
		return err
	}
	l.declareDrives(g, root, stats)
	l.linkCompetenceElements(g, ces)
	return nil
}

func (l *Loader) declareActionPatterns(g *plan.Graph, root *node, stats *Stats) {
	for _, n := range root.descendants(tagActionPattern) {
		var actions []plan.Ref
		for _, a := range n.descendants(tagAction) {
			g.CreateAction(a.attr("name"))
			ref, _ := g.RefOf(plan.CategoryAction, a.attr("name"))
			actions = append(actions, ref)
		}
		l.add(g, plan.NewActionPattern(n.attr("name"), actions), stats)
	}
}

// declareCompetenceElements declares the top-level competence elements
// and returns them for the link pass.
func (l *Loader) declareCompetenceElements(g *plan.Graph, root *node, stats *Stats) []*plan.CompetenceElement {
	var declared []*plan.CompetenceElement
	for _, n := range root.descendants(tagCompetenceElement) {
		if l.isReference(n, tagCompetence) {
			continue
		}
		ce := plan.NewCompetenceElement(n.attr("name"), l.guard(n, stats), n.trimmedAttr("triggers"))
		l.add(g, ce, stats)
		declared = append(declared, ce)
	}
	return declared
}

func (l *Loader) declareCompetences(g *plan.Graph, root *node, stats *Stats) {
	for _, n := range root.descendants(tagCompetence) {
		members := l.members(g, n, tagCompetenceElements, tagCompetenceElement, plan.CategoryCompetenceElement, stats)
		l.add(g, plan.NewCompetence(n.attr("name"), l.guard(n, stats), members), stats)
	}
}

func (l *Loader) declareDriveElements(g *plan.Graph, root *node, stats *Stats) error {
	for _, n := range root.descendants(tagDriveElement) {
		if l.isReference(n, tagDrive) {
			continue
		}
		name := n.attr("name")
		checkTime, err := parseCheckTime(n.attr("checkTime"))
		if err != nil {
			return plan.NewError("Load").Element(plan.CategoryDriveElement, name).Context(n.attr("checkTime")).Cause(err)
		}
		triggers := n.trimmedAttr("triggers")
		triggered := g.ResolveTrigger(triggers)
		l.add(g, plan.NewDriveElement(name, l.guard(n, stats), triggered, triggers, checkTime), stats)
	}
	return nil
}

func (l *Loader) declareDrives(g *plan.Graph, root *node, stats *Stats) {
	for _, n := range root.descendants(tagDrive) {
		members := l.members(g, n, tagDriveElements, tagDriveElement, plan.CategoryDriveElement, stats)
		l.add(g, plan.NewDriveCollection(n.attr("name"), l.guard(n, stats), members), stats)
	}
}

func (l *Loader) linkCompetenceElements(g *plan.Graph, ces []*plan.CompetenceElement) {
	for _, ce := range ces {
		ce.Triggered = g.ResolveTrigger(ce.Triggers)
	}
}

// isReference reports whether n is a name-only entry in a container's
// member list rather than a declaration.
func (l *Loader) isReference(n *node, container string) bool {
	if l.legacyScan {
		return false
	}
	return n.grandparentName() == container
}

func (l *Loader) add(g *plan.Graph, e plan.Element, stats *Stats) {
	if _, err := g.Add(e); err != nil {
		if errors.Is(err, plan.ErrDuplicateElement) {
			stats.Duplicates++
			l.logger.Warn("duplicate element replaced",
				logging.Element(e.Category().String(), e.Name()))
			return
		}
		l.logger.Error("element not added",
			logging.Element(e.Category().String(), e.Name()),
			logging.Error(err))
	}
}

// members resolves the names listed in n's member block against the
// elements already declared. Unknown names are skipped.
func (l *Loader) members(g *plan.Graph, n *node, blockTag, memberTag string, c plan.Category, stats *Stats) []plan.Ref {
	block := n.block(blockTag)
	if block == nil {
		return nil
	}
	var refs []plan.Ref
	for _, m := range block.descendants(memberTag) {
		ref, ok := g.RefOf(c, m.attr("name"))
		if !ok {
			stats.MissingMembers++
			l.logger.Warn("member not declared",
				logging.Element(c.String(), m.attr("name")),
				logging.String("container", n.attr("name")))
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// guard builds the guard of n from its own Senses block. Senses with an
// unknown comparator are dropped.
func (l *Loader) guard(n *node, stats *Stats) plan.Guard {
	block := n.child(tagSenses)
	if block == nil {
		return nil
	}
	var guard plan.Guard
	for _, s := range block.descendants(tagSense) {
		token, ok := s.attrs["comparator"]
		if !ok {
			token = s.attr("comperator")
		}
		sense, err := plan.NewSense(s.attr("name"), token, s.attr("value"))
		if err != nil {
			stats.DroppedSenses++
			l.logger.Warn("sense dropped",
				logging.String("sense", s.attr("name")),
				logging.String("owner", n.attr("name")),
				logging.Error(err))
			continue
		}
		guard = append(guard, sense)
	}
	return guard
}

func parseCheckTime(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return plan.DefaultCheckTime, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, plan.ErrInvalidCheckTime
	}
	return v, nil
}
