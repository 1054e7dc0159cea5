package exam

import (
	"context"
	"errors"
	"fmt"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

// paperRefs checks that a test only draws on active questions and sets that
// the test's institute can see.
type paperRefs struct {
	questions docstore.Collection[Question]
	sets      docstore.Collection[QuestionSet]
}

func newPaperRefs(store docstore.Store) paperRefs {
	return paperRefs{
		questions: docstore.NewCollection[Question](store, CollQuestions),
		sets:      docstore.NewCollection[QuestionSet](store, CollQuestionSets),
	}
}

func (r paperRefs) check(ctx context.Context, t *Test) error {
	var c apperr.Collector
	usable := map[string]bool{}
	setUsable := func(id string) (bool, error) {
		ok, seen := usable[id]
		if seen {
			return ok, nil
		}
		set, err := r.sets.Get(ctx, id)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return false, apperr.Server(err)
		}
		ok = err == nil && set.Active() && sharedWith(set.InstituteID, t.InstituteID)
		usable[id] = ok
		return ok, nil
	}

	if ids := t.QuestionIDs(); len(ids) > 0 {
		qs, err := r.questions.Find(ctx, docstore.Query{Filter: docstore.Filter{docstore.IDField: docstore.InStrings(ids)}})
		if err != nil {
			return apperr.Server(err)
		}
		byID := make(map[string]Question, len(qs))
		for _, q := range qs {
			byID[q.ID] = q
		}
		for _, id := range ids {
			q, found := byID[id]
			ok := found && q.Active() && sharedWith(q.InstituteID, t.InstituteID)
			if ok {
				if ok, err = setUsable(q.QuestionSetID); err != nil {
					return err
				}
			}
			if !ok {
				c.Add("questionIds", "question "+id+" is not an active question available to this test")
			}
		}
	}

	for i, s := range t.Sections {
		for j, p := range s.Pools {
			if p.QuestionSetID == "" {
				continue
			}
			ok, err := setUsable(p.QuestionSetID)
			if err != nil {
				return err
			}
			if !ok {
				c.Add(fmt.Sprintf("sections.%d.pools.%d.questionSetId", i, j), "is not an active question set available to this test")
			}
		}
	}
	return c.Err()
}

// sharedWith reports whether content of owner may be used by institute. An
// institute-less test may only use institute-less content.
func sharedWith(owner, institute string) bool {
	return owner == "" || owner == institute
}
