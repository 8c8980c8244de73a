package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Call is one primitive seen by a Recorder.
type Call struct {
	Link Link
	Tool string
	Args []string
}

// String renders the call as the command line it stands for.
func (c Call) String() string {
	return c.Tool + " " + strings.Join(c.Args, " ")
}

// ErrInjected is returned by a Recorder when FailOn selects a call.
var ErrInjected = errors.New("injected failure")

// Recorder is an in-memory Device and LinkOps. It keeps the object table a
// kernel would and rejects the same mistakes: adding an existing handle,
// changing or deleting a missing one.
type Recorder struct {
	mu sync.Mutex

	// FailOn, when set, is consulted before every call; a true result fails
	// the call with ErrInjected and leaves the table untouched.
	FailOn func(Call) bool

	calls   []Call
	links   map[Link]bool
	qdiscs  map[Link]map[string]Qdisc
	classes map[Link]map[string]Class
	filters map[Link][]Filter
}

// NewRecorder returns an empty Recorder. The given links already exist.
func NewRecorder(links ...Link) *Recorder {
	r := &Recorder{
		links:   map[Link]bool{},
		qdiscs:  map[Link]map[string]Qdisc{},
		classes: map[Link]map[string]Class{},
		filters: map[Link][]Filter{},
	}
	for _, l := range links {
		r.links[l] = true
	}
	return r
}

// Calls returns a copy of every call made so far, in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsFor returns the calls made against l, rendered as command lines.
func (r *Recorder) CallsFor(l Link) []string {
	var out []string
	for _, c := range r.Calls() {
		if c.Link == l {
			out = append(out, c.String())
		}
	}
	return out
}

// Qdisc returns the qdisc with the given handle on l.
func (r *Recorder) Qdisc(l Link, handle string) (Qdisc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.qdiscs[l][handle]
	return q, ok
}

// Class returns the class with the given id on l.
func (r *Recorder) Class(l Link, classID string) (Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[l][classID]
	return c, ok
}

// Filters returns the filters attached to l.
func (r *Recorder) Filters(l Link) []Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Filter(nil), r.filters[l]...)
}

func (r *Recorder) record(l Link, args []string) error {
	c := Call{Link: l, Tool: "tc", Args: args}
	if args[0] == "link" {
		c.Tool = "ip"
	}
	if r.FailOn != nil && r.FailOn(c) {
		return fmt.Errorf("%s: %w", c, ErrInjected)
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *Recorder) mustExist(l Link) error {
	if !r.links[l] {
		return fmt.Errorf("cannot find device %q", l)
	}
	return nil
}

func (r *Recorder) AddQdisc(l Link, q Qdisc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mustExist(l); err != nil {
		return err
	}
	if _, ok := r.qdiscs[l][q.Handle]; ok {
		return fmt.Errorf("qdisc %s on %s: file exists", q.Handle, l)
	}
	if err := r.record(l, qdiscArgs("add", l, q)); err != nil {
		return err
	}
	if r.qdiscs[l] == nil {
		r.qdiscs[l] = map[string]Qdisc{}
	}
	q.Params = q.Params.Clone()
	r.qdiscs[l][q.Handle] = q
	return nil
}

func (r *Recorder) ChangeQdisc(l Link, q Qdisc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.qdiscs[l][q.Handle]
	if !ok {
		return fmt.Errorf("qdisc %s on %s: no such file or directory", q.Handle, l)
	}
	if old.Kind != q.Kind {
		return fmt.Errorf("qdisc %s on %s is %s, not %s", q.Handle, l, old.Kind, q.Kind)
	}
	if err := r.record(l, qdiscArgs("change", l, q)); err != nil {
		return err
	}
	q.Params = q.Params.Clone()
	r.qdiscs[l][q.Handle] = q
	return nil
}

func (r *Recorder) DeleteQdisc(l Link, q Qdisc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.qdiscs[l][q.Handle]; !ok {
		return fmt.Errorf("qdisc %s on %s: no such file or directory", q.Handle, l)
	}
	if err := r.record(l, qdiscArgs("del", l, Qdisc{Parent: q.Parent, Handle: q.Handle})); err != nil {
		return err
	}
	delete(r.qdiscs[l], q.Handle)
	return nil
}

func (r *Recorder) AddClass(l Link, c Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.qdiscs[l][c.Parent]; !ok {
		return fmt.Errorf("class %s on %s: parent %s does not exist", c.ClassID, l, c.Parent)
	}
	if _, ok := r.classes[l][c.ClassID]; ok {
		return fmt.Errorf("class %s on %s: file exists", c.ClassID, l)
	}
	if err := r.record(l, classArgs("add", l, c)); err != nil {
		return err
	}
	if r.classes[l] == nil {
		r.classes[l] = map[string]Class{}
	}
	c.Params = c.Params.Clone()
	r.classes[l][c.ClassID] = c
	return nil
}

func (r *Recorder) ChangeClass(l Link, c Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[l][c.ClassID]; !ok {
		return fmt.Errorf("class %s on %s: no such file or directory", c.ClassID, l)
	}
	if err := r.record(l, classArgs("change", l, c)); err != nil {
		return err
	}
	c.Params = c.Params.Clone()
	r.classes[l][c.ClassID] = c
	return nil
}

func (r *Recorder) AddFilter(l Link, f Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.qdiscs[l][f.Parent]; !ok {
		return fmt.Errorf("filter on %s: parent %s does not exist", l, f.Parent)
	}
	if err := r.record(l, filterArgs("add", l, f)); err != nil {
		return err
	}
	f.Params = f.Params.Clone()
	r.filters[l] = append(r.filters[l], f)
	return nil
}

func (r *Recorder) AddIfb(l Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.links[l] {
		return fmt.Errorf("link %s: file exists", l)
	}
	if err := r.record(l, []string{"link", "add", l.Name, "type", "ifb"}); err != nil {
		return err
	}
	r.links[l] = true
	return nil
}

func (r *Recorder) LinkExists(l Link) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[l], nil
}

func (r *Recorder) QdiscList(l Link) ([]QdiscInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mustExist(l); err != nil {
		return nil, err
	}
	var infos []QdiscInfo
	for _, q := range r.qdiscs[l] {
		infos = append(infos, QdiscInfo{Kind: q.Kind, Handle: q.Handle, Parent: q.Parent})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos, nil
}
