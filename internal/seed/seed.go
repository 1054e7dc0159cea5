// Package seed loads YAML fixtures through the entity services, so seeded data
// goes through the same validation and defaults as API writes.
package seed

import (
	"context"
	"io/ioutil"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Fixture is the file layout. Entities refer to each other by code, email or ref.
type Fixture struct {
	Institutes   []Institute   `yaml:"institutes"`
	Users        []User        `yaml:"users"`
	Batches      []Batch       `yaml:"batches"`
	QuestionSets []QuestionSet `yaml:"question_sets"`
	Tests        []Test        `yaml:"tests"`
}

type Institute struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type User struct {
	Name      string   `yaml:"name"`
	Email     string   `yaml:"email"`
	Role      string   `yaml:"role"`
	Password  string   `yaml:"password"`
	Institute string   `yaml:"institute,omitempty"`
	Batches   []string `yaml:"batches,omitempty"`
}

type Batch struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Institute string `yaml:"institute"`
}

type QuestionSet struct {
	Code      string     `yaml:"code"`
	Name      string     `yaml:"name"`
	Institute string     `yaml:"institute,omitempty"`
	Questions []Question `yaml:"questions"`
}

type Question struct {
	Ref           string   `yaml:"ref,omitempty"`
	Text          string   `yaml:"text"`
	Options       []string `yaml:"options"`
	Correct       int      `yaml:"correct"`
	Difficulty    string   `yaml:"difficulty,omitempty"`
	Marks         float64  `yaml:"marks,omitempty"`
	NegativeMarks float64  `yaml:"negative_marks,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
}

type Test struct {
	Code            string    `yaml:"code"`
	Name            string    `yaml:"name"`
	Institute       string    `yaml:"institute,omitempty"`
	Kind            string    `yaml:"kind,omitempty"`
	TotalMarks      float64   `yaml:"total_marks,omitempty"`
	PassPercentage  *float64  `yaml:"pass_percentage,omitempty"`
	DurationMinutes int       `yaml:"duration_minutes,omitempty"`
	Sections        []Section `yaml:"sections"`
}

type Section struct {
	Name      string   `yaml:"name"`
	Questions []string `yaml:"questions,omitempty"` // question refs
	Pools     []Pool   `yaml:"pools,omitempty"`
}

type Pool struct {
	Set    string `yaml:"set"`
	Easy   int    `yaml:"easy"`
	Medium int    `yaml:"medium"`
	Hard   int    `yaml:"hard"`
}

// Parse decodes a fixture document.
func Parse(data []byte) (*Fixture, error) {
	f := &Fixture{}
	if err := yaml.UnmarshalStrict(data, f); err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	return f, nil
}

// ReadFile parses the fixture at path.
func ReadFile(path string) (*Fixture, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	return Parse(data)
}

// Report counts what a run created and what was already present.
type Report struct {
	Created map[string]int
	Skipped map[string]int
}

func (r *Report) add(kind string, created bool) {
	if created {
		r.Created[kind]++
	} else {
		r.Skipped[kind]++
	}
}

type Loader struct {
	svc     *exam.Services
	workers int
	log     logrus.FieldLogger
	actor   rbac.Principal

	institutes map[string]string // code -> id
	batches    map[string]string // institute/code -> id
	sets       map[string]string
	questions  map[string]string // ref -> id
}

// NewLoader seeds as a superadmin; workers bounds concurrent question inserts.
func NewLoader(svc *exam.Services, workers int, log logrus.FieldLogger) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{
		svc:     svc,
		workers: workers,
		log:     log.WithField("component", "seed"),
		actor:   rbac.Principal{UserID: "seed", Role: rbac.RoleSuperAdmin},
	}
}

// Load applies f. Entities whose unique key already exists are looked up and
// reused, so loading the same fixture twice is harmless. Questions are only
// inserted into sets created by this run.
func (l *Loader) Load(ctx context.Context, f *Fixture) (Report, error) {
	l.institutes = map[string]string{}
	l.batches = map[string]string{}
	l.sets = map[string]string{}
	l.questions = map[string]string{}
	rep := Report{Created: map[string]int{}, Skipped: map[string]int{}}

	for _, in := range f.Institutes {
		id, created, err := l.institute(ctx, in)
		if err != nil {
			return rep, err
		}
		l.institutes[strings.ToUpper(in.Code)] = id
		rep.add("institutes", created)
	}
	for _, b := range f.Batches {
		id, created, err := l.batch(ctx, b)
		if err != nil {
			return rep, err
		}
		l.batches[batchKey(b.Institute, b.Code)] = id
		rep.add("batches", created)
	}
	for _, u := range f.Users {
		created, err := l.user(ctx, u)
		if err != nil {
			return rep, err
		}
		rep.add("users", created)
	}
	for _, qs := range f.QuestionSets {
		id, created, err := l.questionSet(ctx, qs)
		if err != nil {
			return rep, err
		}
		inst, _ := l.instituteID(qs.Institute)
		l.sets[strings.ToUpper(qs.Code)] = id
		rep.add("question_sets", created)
		if !created {
			continue
		}
		n, err := l.insertQuestions(ctx, inst, id, qs)
		if err != nil {
			return rep, err
		}
		rep.Created["questions"] += n
	}
	for _, t := range f.Tests {
		created, err := l.test(ctx, t)
		if err != nil {
			return rep, err
		}
		rep.add("tests", created)
	}

	l.log.WithFields(logrus.Fields{"created": rep.Created, "skipped": rep.Skipped}).Info("fixture loaded")
	return rep, nil
}

func (l *Loader) institute(ctx context.Context, in Institute) (string, bool, error) {
	v, err := l.svc.Institutes.Create(ctx, l.actor, exam.Institute{Code: in.Code, Name: in.Name})
	if err == nil {
		return v.ID, true, nil
	}
	return existing(ctx, err, l.svc.Institutes.Collection(), "institute "+in.Code,
		docstore.Filter{"code": in.Code})
}

func (l *Loader) batch(ctx context.Context, b Batch) (string, bool, error) {
	inst, err := l.instituteID(b.Institute)
	if err != nil {
		return "", false, err
	}
	v, err := l.svc.Batches.Create(ctx, l.actor, exam.Batch{
		Meta: exam.Meta{InstituteID: inst}, Code: b.Code, Name: b.Name,
	})
	if err == nil {
		return v.ID, true, nil
	}
	return existing(ctx, err, l.svc.Batches.Collection(), "batch "+b.Code,
		docstore.Filter{"instituteId": inst, "code": b.Code})
}

func (l *Loader) user(ctx context.Context, u User) (bool, error) {
	inst, err := l.instituteID(u.Institute)
	if err != nil {
		return false, err
	}
	var batchIDs []string
	for _, code := range u.Batches {
		id, ok := l.batches[batchKey(u.Institute, code)]
		if !ok {
			return false, errors.Errorf("user %s: unknown batch %q", u.Email, code)
		}
		batchIDs = append(batchIDs, id)
	}
	_, err = l.svc.Users.Create(ctx, l.actor, exam.User{
		Meta:     exam.Meta{InstituteID: inst},
		Name:     u.Name,
		Email:    u.Email,
		Role:     rbac.Role(u.Role),
		BatchIDs: batchIDs,
		Password: u.Password,
	})
	if apperr.KindOf(err) == apperr.KindDuplicateKey {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "user %s", u.Email)
	}
	return true, nil
}

func (l *Loader) questionSet(ctx context.Context, qs QuestionSet) (string, bool, error) {
	inst, err := l.instituteID(qs.Institute)
	if err != nil {
		return "", false, err
	}
	v, err := l.svc.QuestionSets.Create(ctx, l.actor, exam.QuestionSet{
		Meta: exam.Meta{InstituteID: inst}, Code: qs.Code, Name: qs.Name,
	})
	if err == nil {
		return v.ID, true, nil
	}
	id, _, err := existing(ctx, err, l.svc.QuestionSets.Collection(), "question set "+qs.Code,
		docstore.Filter{"code": qs.Code})
	if err != nil {
		return "", false, err
	}
	// refs of an existing set are resolved from stored tags
	if err := l.loadRefs(ctx, id); err != nil {
		return "", false, err
	}
	return id, false, nil
}

// insertQuestions creates the set's questions with at most l.workers in flight.
func (l *Loader) insertQuestions(ctx context.Context, inst, setID string, qs QuestionSet) (int, error) {
	var (
		mu       sync.Mutex
		firstErr error
		n        int
	)
	swg := sizedwaitgroup.New(l.workers)
	for i := range qs.Questions {
		q := qs.Questions[i]
		swg.Add()
		go func() {
			defer swg.Done()
			v, err := l.svc.Questions.Create(ctx, l.actor, exam.Question{
				Meta:          exam.Meta{InstituteID: inst},
				QuestionSetID: setID,
				Text:          q.Text,
				Options:       q.Options,
				CorrectOption: q.Correct,
				Difficulty:    exam.Difficulty(q.Difficulty),
				Marks:         q.Marks,
				NegativeMarks: q.NegativeMarks,
				Tags:          refTags(q),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "question set %s: question %q", qs.Code, q.Text)
				}
				return
			}
			n++
			if q.Ref != "" {
				l.questions[q.Ref] = v.ID
			}
		}()
	}
	swg.Wait()
	return n, firstErr
}

func (l *Loader) loadRefs(ctx context.Context, setID string) error {
	qs, err := l.svc.Questions.Collection().Find(ctx, docstore.Query{Filter: docstore.Filter{"questionSetId": setID}})
	if err != nil {
		return errors.Wrap(err, "load questions")
	}
	for _, q := range qs {
		for _, tag := range q.Tags {
			if ref, ok := strings.CutPrefix(tag, refTagPrefix); ok {
				l.questions[ref] = q.ID
			}
		}
	}
	return nil
}

func (l *Loader) test(ctx context.Context, t Test) (bool, error) {
	inst, err := l.instituteID(t.Institute)
	if err != nil {
		return false, err
	}
	v := exam.Test{
		Meta:            exam.Meta{InstituteID: inst},
		Name:            t.Name,
		Code:            t.Code,
		Kind:            exam.TestKind(t.Kind),
		TotalMarks:      t.TotalMarks,
		PassPercentage:  t.PassPercentage,
		DurationMinutes: t.DurationMinutes,
	}
	for _, s := range t.Sections {
		sec := exam.Section{Name: s.Name}
		for _, ref := range s.Questions {
			id, ok := l.questions[ref]
			if !ok {
				return false, errors.Errorf("test %s: unknown question ref %q", t.Code, ref)
			}
			sec.QuestionIDs = append(sec.QuestionIDs, id)
		}
		for _, p := range s.Pools {
			setID, ok := l.sets[strings.ToUpper(p.Set)]
			if !ok {
				return false, errors.Errorf("test %s: unknown question set %q", t.Code, p.Set)
			}
			sec.Pools = append(sec.Pools, exam.Pool{
				QuestionSetID: setID,
				Distribution:  exam.Distribution{Easy: p.Easy, Medium: p.Medium, Hard: p.Hard},
			})
		}
		v.Sections = append(v.Sections, sec)
	}
	_, err = l.svc.Tests.Create(ctx, l.actor, v)
	if apperr.KindOf(err) == apperr.KindDuplicateKey {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "test %s", t.Code)
	}
	return true, nil
}

// existing resolves the id behind a duplicate-key failure. Any other error is returned.
func existing[T any, P exam.Entity[T]](ctx context.Context, err error, coll docstore.Collection[T], what string, f docstore.Filter) (string, bool, error) {
	if apperr.KindOf(err) != apperr.KindDuplicateKey {
		return "", false, errors.Wrap(err, what)
	}
	found, ferr := coll.Find(ctx, docstore.Query{Filter: f, Limit: 1})
	if ferr != nil {
		return "", false, errors.Wrap(ferr, what)
	}
	if len(found) == 0 {
		return "", false, errors.Errorf("%s: key is taken by a document with another code", what)
	}
	return P(&found[0]).Base().ID, false, nil
}

func (l *Loader) instituteID(code string) (string, error) {
	if code == "" {
		return "", nil
	}
	id, ok := l.institutes[strings.ToUpper(code)]
	if !ok {
		return "", errors.Errorf("unknown institute %q", code)
	}
	return id, nil
}

const refTagPrefix = "ref:"

func refTags(q Question) []string {
	if q.Ref == "" {
		return q.Tags
	}
	return append(append([]string{}, q.Tags...), refTagPrefix+q.Ref)
}

func batchKey(inst, code string) string {
	return strings.ToUpper(inst) + "/" + strings.ToUpper(code)
}
