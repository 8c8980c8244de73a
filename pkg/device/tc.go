package device

import (
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"Netshape/pkg/tcerr"
)

var tcLog = logrus.WithField("source", "netshape/device")

// NetnsDir is where named network namespaces are mounted by `ip netns`.
const NetnsDir = "/var/run/netns"

// NamespacePath resolves a namespace name to its bind-mount path. Values that
// already look like a path, such as /proc/<pid>/ns/net, are returned as is.
func NamespacePath(namespace string) string {
	if strings.Contains(namespace, "/") {
		return namespace
	}
	return filepath.Join(NetnsDir, namespace)
}

// Runner runs a command and returns its combined output.
type Runner interface {
	Run(name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// TC implements Device with the tc binary. Commands for an interface that
// lives in another namespace are run through nsenter.
type TC struct {
	runner Runner
}

// NewTC returns a TC that executes commands on the host.
func NewTC() *TC {
	return &TC{runner: execRunner{}}
}

// NewTCWithRunner returns a TC that executes commands through r.
func NewTCWithRunner(r Runner) *TC {
	return &TC{runner: r}
}

// Command returns the full argv used to run tc with args against l.
func Command(l Link, args ...string) []string {
	argv := append([]string{"tc"}, args...)
	if l.Namespace == "" {
		return argv
	}
	return append([]string{"nsenter", "--net=" + NamespacePath(l.Namespace), "--"}, argv...)
}

func (t *TC) exec(l Link, args ...string) error {
	argv := Command(l, args...)
	log := tcLog.WithFields(logrus.Fields{"namespace": l.Namespace, "device": l.Name})
	log.Debugf("Running: %s", strings.Join(argv, " "))

	out, err := t.runner.Run(argv[0], argv[1:]...)
	if err != nil {
		log.WithError(err).Errorf("tc failed: %s", strings.TrimSpace(string(out)))
		return &tcerr.CommandError{Args: argv, Output: string(out), Err: err}
	}
	return nil
}

func (t *TC) AddQdisc(l Link, q Qdisc) error {
	return t.exec(l, qdiscArgs("add", l, q)...)
}

func (t *TC) ChangeQdisc(l Link, q Qdisc) error {
	return t.exec(l, qdiscArgs("change", l, q)...)
}

func (t *TC) DeleteQdisc(l Link, q Qdisc) error {
	// the kind and options are not needed to identify a qdisc on delete
	return t.exec(l, qdiscArgs("del", l, Qdisc{Parent: q.Parent, Handle: q.Handle})...)
}

func (t *TC) AddClass(l Link, c Class) error {
	return t.exec(l, classArgs("add", l, c)...)
}

func (t *TC) ChangeClass(l Link, c Class) error {
	return t.exec(l, classArgs("change", l, c)...)
}

func (t *TC) AddFilter(l Link, f Filter) error {
	return t.exec(l, filterArgs("add", l, f)...)
}
