// Package assembly builds the question paper of an attempt: the fixed list of
// a fixed test, or a random draw by difficulty distribution.
package assembly

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
)

// Shortfall reports a pool that cannot be satisfied from its question set.
type Shortfall struct {
	QuestionSetID string          `json:"questionSetId"`
	Difficulty    exam.Difficulty `json:"difficulty"`
	Requested     int             `json:"requested"`
	Available     int             `json:"available"`
}

func (s Shortfall) String() string {
	return fmt.Sprintf("question set %s has %d active %s questions, %d requested",
		s.QuestionSetID, s.Available, s.Difficulty, s.Requested)
}

type Assembler struct {
	questions docstore.Collection[exam.Question]

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New returns an Assembler drawing with rng, or with a time-seeded source when
// rng is nil.
func New(store docstore.Store, rng *rand.Rand) *Assembler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Assembler{
		questions: docstore.NewCollection[exam.Question](store, exam.CollQuestions),
		rng:       rng,
	}
}

// Draw selects questions for every pool of every section, in section order,
// pool order and Easy, Medium, Hard order. A question is drawn at most once
// per paper. It fails with InsufficientQuestions on the first pool that
// cannot be filled.
func (a *Assembler) Draw(ctx context.Context, sections []exam.Section) ([]grading.Item, error) {
	drawn := map[string]bool{}
	var paper []grading.Item
	for _, sec := range sections {
		for _, pool := range sec.Pools {
			for _, level := range exam.Difficulties {
				n := pool.Distribution.Count(level)
				if n <= 0 {
					continue
				}
				cands, err := a.available(ctx, pool.QuestionSetID, level)
				if err != nil {
					return nil, err
				}
				free := cands[:0]
				for _, q := range cands {
					if !drawn[q.ID] {
						free = append(free, q)
					}
				}
				if len(free) < n {
					sf := Shortfall{QuestionSetID: pool.QuestionSetID, Difficulty: level, Requested: n, Available: len(free)}
					return nil, apperr.InsufficientQuestions(sf.String(), sf)
				}
				a.shuffle(free)
				for _, q := range free[:n] {
					drawn[q.ID] = true
					paper = append(paper, grading.Item{Question: q, Section: sec.Name})
				}
			}
		}
	}
	return paper, nil
}

// CheckInventory returns every (set, difficulty) whose active questions
// cannot cover the combined demand of the sections. It never fails on a
// shortfall, so it suits definition-time warnings.
func (a *Assembler) CheckInventory(ctx context.Context, sections []exam.Section) ([]Shortfall, error) {
	type need struct {
		set   string
		level exam.Difficulty
	}
	demand := map[need]int{}
	var order []need
	for _, sec := range sections {
		for _, pool := range sec.Pools {
			for _, level := range exam.Difficulties {
				n := pool.Distribution.Count(level)
				if n <= 0 {
					continue
				}
				k := need{pool.QuestionSetID, level}
				if _, ok := demand[k]; !ok {
					order = append(order, k)
				}
				demand[k] += n
			}
		}
	}

	var out []Shortfall
	for _, k := range order {
		have, err := a.questions.Count(ctx, activeFilter(k.set, k.level))
		if err != nil {
			return nil, apperr.Server(err)
		}
		if int(have) < demand[k] {
			out = append(out, Shortfall{QuestionSetID: k.set, Difficulty: k.level, Requested: demand[k], Available: int(have)})
		}
	}
	return out, nil
}

// Fixed returns the paper of a fixed test. Questions that no longer exist are
// left out.
func (a *Assembler) Fixed(ctx context.Context, t exam.Test) ([]grading.Item, error) {
	var items []exam.PaperItem
	for _, sec := range t.Sections {
		for _, id := range sec.QuestionIDs {
			items = append(items, exam.PaperItem{QuestionID: id, Section: sec.Name})
		}
	}
	return a.Resolve(ctx, items)
}

// Resolve loads the questions of a stored paper, keeping its order.
func (a *Assembler) Resolve(ctx context.Context, items []exam.PaperItem) ([]grading.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.QuestionID
	}
	qs, err := a.questions.Find(ctx, docstore.Query{Filter: docstore.Filter{docstore.IDField: docstore.InStrings(ids)}})
	if err != nil {
		return nil, apperr.Server(err)
	}
	byID := make(map[string]exam.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	paper := make([]grading.Item, 0, len(items))
	for _, it := range items {
		if q, ok := byID[it.QuestionID]; ok {
			paper = append(paper, grading.Item{Question: q, Section: it.Section})
		}
	}
	return paper, nil
}

// PaperOf strips a paper down to what an attempt stores.
func PaperOf(paper []grading.Item) []exam.PaperItem {
	out := make([]exam.PaperItem, len(paper))
	for i, it := range paper {
		out[i] = exam.PaperItem{QuestionID: it.Question.ID, Section: it.Section}
	}
	return out
}

func (a *Assembler) available(ctx context.Context, setID string, level exam.Difficulty) ([]exam.Question, error) {
	qs, err := a.questions.Find(ctx, docstore.Query{Filter: activeFilter(setID, level), Sort: docstore.IDField})
	if err != nil {
		return nil, apperr.Server(err)
	}
	return qs, nil
}

func (a *Assembler) shuffle(qs []exam.Question) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

func activeFilter(setID string, level exam.Difficulty) docstore.Filter {
	return docstore.Filter{
		"questionSetId": setID,
		"difficulty":    level,
		"lifecycle":     exam.LifecycleActive,
	}
}
