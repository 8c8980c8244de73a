package device

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"
)

const sysModuleDir = "/sys/module"

// NetlinkOps implements LinkOps with netlink, entering the interface's
// namespace for every call.
type NetlinkOps struct{}

func inNamespace(namespace string, fn func() error) error {
	if namespace == "" {
		return fn()
	}
	netNs, err := ns.GetNS(NamespacePath(namespace))
	if err != nil {
		return fmt.Errorf("failed to get namespace %s: %w", namespace, err)
	}
	defer netNs.Close()

	return netNs.Do(func(_ ns.NetNS) error {
		return fn()
	})
}

func (NetlinkOps) AddIfb(l Link) error {
	return inNamespace(l.Namespace, func() error {
		attrs := netlink.NewLinkAttrs()
		attrs.Name = l.Name
		ifb := &netlink.Ifb{LinkAttrs: attrs}
		if err := netlink.LinkAdd(ifb); err != nil {
			return fmt.Errorf("failed to add ifb %s: %w (is the ifb kernel module available?)", l, err)
		}
		link, err := netlink.LinkByName(l.Name)
		if err != nil {
			return fmt.Errorf("failed to get link by name %s: %w", l, err)
		}
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("failed to set link %s up: %w", l, err)
		}
		return nil
	})
}

func (NetlinkOps) LinkExists(l Link) (bool, error) {
	found := false
	err := inNamespace(l.Namespace, func() error {
		_, err := netlink.LinkByName(l.Name)
		if err != nil {
			var notFound netlink.LinkNotFoundError
			if errors.As(err, &notFound) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (NetlinkOps) QdiscList(l Link) ([]QdiscInfo, error) {
	var infos []QdiscInfo
	err := inNamespace(l.Namespace, func() error {
		link, err := netlink.LinkByName(l.Name)
		if err != nil {
			return fmt.Errorf("failed to get link by name %s: %w", l, err)
		}
		qdiscs, err := netlink.QdiscList(link)
		if err != nil {
			return fmt.Errorf("failed to list qdiscs on %s: %w", l, err)
		}
		for _, q := range qdiscs {
			infos = append(infos, QdiscInfo{
				Kind:   q.Type(),
				Handle: netlink.HandleStr(q.Attrs().Handle),
				Parent: netlink.HandleStr(q.Attrs().Parent),
			})
		}
		return nil
	})
	return infos, err
}

// EnsureIfbModule loads the ifb kernel module unless it is already present.
// No devices are pre-created; every ifb is added on demand.
func EnsureIfbModule() error {
	if _, err := os.Stat(filepath.Join(sysModuleDir, "ifb")); err == nil {
		return nil
	}
	if out, err := exec.Command("modprobe", "ifb", "numifbs=0").CombinedOutput(); err != nil {
		return fmt.Errorf("modprobe ifb failed: %s: %w", string(out), err)
	}
	return nil
}
