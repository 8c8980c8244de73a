package api

type Interface struct {
	Name       string         `yaml:"name"`
	NetNs      string         `yaml:"netns"` // empty for the host namespace
	Peer       string         `yaml:"peer"`  // remote end of the veth pair
	Addresses  []string       `yaml:"addresses"`
	MTU        int            `yaml:"mtu"`
	Properties LinkProperties `yaml:"properties"`
}
