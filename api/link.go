package api

type Link struct {
	Src            string         `yaml:"src"` // interface name, or netns/name when the name is not unique
	Dst            string         `yaml:"dst"` // same form as Src
	Properties     LinkProperties `yaml:"properties"`
	UniDirectional bool           `yaml:"uniDirectional"`
}

// LinkProperties are the shaping attributes of one interface. Every field is
// a string in the tc unit syntax ("10mbit", "5ms", "1%"); empty means unset.
type LinkProperties struct {
	Bandwidth    string `yaml:"bandwidth"`
	Delay        string `yaml:"delay"`
	Jitter       string `yaml:"jitter"`
	JitterCorr   string `yaml:"jitterCorrelation"`
	Distribution string `yaml:"distribution"` // uniform, normal, pareto, paretonormal

	Loss        string       `yaml:"loss"`
	LossCorr    string       `yaml:"lossCorrelation"`
	LossState   *LossState   `yaml:"lossState"`
	LossGemodel *LossGemodel `yaml:"lossGemodel"`

	Corrupt       string   `yaml:"corrupt"`
	CorruptCorr   string   `yaml:"corruptCorrelation"`
	Duplicate     string   `yaml:"duplicate"`
	DuplicateCorr string   `yaml:"duplicateCorrelation"`
	Reorder       *Reorder `yaml:"reorder"`

	Qdisc       string            `yaml:"qdisc"` // installed on the IFB
	QdiscParams map[string]string `yaml:"qdiscParams"`
}

type LossState struct {
	P13 string `yaml:"p13"`
	P31 string `yaml:"p31"`
	P32 string `yaml:"p32"`
	P23 string `yaml:"p23"`
	P14 string `yaml:"p14"`
	ECN bool   `yaml:"ecn"`
}

type LossGemodel struct {
	P         string `yaml:"p"`
	R         string `yaml:"r"`
	OneMinusH string `yaml:"1-h"`
	OneMinusK string `yaml:"1-k"`
	ECN       bool   `yaml:"ecn"`
}

type Reorder struct {
	Delay       string `yaml:"delay"` // on top of the base delay
	Rate        string `yaml:"rate"`
	Correlation string `yaml:"correlation"`
	Gap         int    `yaml:"gap"`
}
