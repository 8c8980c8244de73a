package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"Netshape/api"
	"Netshape/pkg"
)

type setOptions struct {
	iface api.Interface
	props api.LinkProperties

	lossState   []string
	lossGemodel []string
	ecn         bool

	reorderDelay, reorderRate, reorderCorr string
	reorderGap                             int
}

func newSetCmd(c *pkg.Calculator) *cobra.Command {
	o := &setOptions{}
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Shape one interface",
		Long: `Shape one interface. Only the given attributes change; everything else
already applied to the interface is kept.`,
		Example: `  netshape set -i veth0 --netns red --bandwidth 10mbit --delay 20ms --loss 1%
  netshape set -i veth0 --netns red --qdisc red --qdisc-param limit=150000,min=7500,max=22500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.interfaceConfig()
			if err != nil {
				return err
			}
			return c.Set(cfg)
		},
	}

	f := setCmd.Flags()
	f.StringVarP(&o.iface.Name, "interface", "i", "", "Interface name")
	f.StringVar(&o.iface.NetNs, "netns", "", "Network namespace of the interface")
	f.StringVar(&o.props.Bandwidth, "bandwidth", "", "Egress rate, e.g. 10mbit")
	f.StringVar(&o.props.Delay, "delay", "", "One-way delay, e.g. 20ms")
	f.StringVar(&o.props.Jitter, "jitter", "", "Delay variation, e.g. 2ms")
	f.StringVar(&o.props.JitterCorr, "jitter-correlation", "", "Jitter correlation")
	f.StringVar(&o.props.Distribution, "distribution", "", "Jitter distribution: uniform, normal, pareto, paretonormal")
	f.StringVar(&o.props.Loss, "loss", "", "Random loss rate")
	f.StringVar(&o.props.LossCorr, "loss-correlation", "", "Random loss correlation")
	f.StringSliceVar(&o.lossState, "loss-state", nil, "4-state loss model: p13[,p31[,p32[,p23[,p14]]]]")
	f.StringSliceVar(&o.lossGemodel, "loss-gemodel", nil, "Gilbert-Elliott loss model: p[,r[,1-h[,1-k]]]")
	f.BoolVar(&o.ecn, "ecn", false, "Mark instead of dropping in the loss model")
	f.StringVar(&o.props.Corrupt, "corrupt", "", "Corruption rate")
	f.StringVar(&o.props.CorruptCorr, "corrupt-correlation", "", "Corruption correlation")
	f.StringVar(&o.props.Duplicate, "duplicate", "", "Duplication rate")
	f.StringVar(&o.props.DuplicateCorr, "duplicate-correlation", "", "Duplication correlation")
	f.StringVar(&o.reorderDelay, "reorder-delay", "", "Extra delay of the packets that are not reordered")
	f.StringVar(&o.reorderRate, "reorder-rate", "", "Share of packets sent immediately")
	f.StringVar(&o.reorderCorr, "reorder-correlation", "", "Reordering correlation")
	f.IntVar(&o.reorderGap, "reorder-gap", 0, "Reorder every n-th packet")
	f.StringVar(&o.props.Qdisc, "qdisc", "", "Discipline installed on the interface's IFB")
	f.StringToStringVar(&o.props.QdiscParams, "qdisc-param", nil, "Discipline parameters, key=value")
	_ = setCmd.MarkFlagRequired("interface")
	setCmd.MarkFlagsMutuallyExclusive("loss", "loss-state", "loss-gemodel")
	return setCmd
}

func (o *setOptions) interfaceConfig() (api.Interface, error) {
	p := o.props
	if len(o.lossState) > 0 {
		if len(o.lossState) > 5 {
			return api.Interface{}, fmt.Errorf("--loss-state takes at most 5 values, got %d", len(o.lossState))
		}
		v := make([]string, 5)
		copy(v, o.lossState)
		p.LossState = &api.LossState{P13: v[0], P31: v[1], P32: v[2], P23: v[3], P14: v[4], ECN: o.ecn}
	}
	if len(o.lossGemodel) > 0 {
		if len(o.lossGemodel) > 4 {
			return api.Interface{}, fmt.Errorf("--loss-gemodel takes at most 4 values, got %d", len(o.lossGemodel))
		}
		v := make([]string, 4)
		copy(v, o.lossGemodel)
		p.LossGemodel = &api.LossGemodel{P: v[0], R: v[1], OneMinusH: v[2], OneMinusK: v[3], ECN: o.ecn}
	}
	if o.reorderDelay != "" || o.reorderRate != "" || o.reorderCorr != "" || o.reorderGap != 0 {
		p.Reorder = &api.Reorder{Delay: o.reorderDelay, Rate: o.reorderRate, Correlation: o.reorderCorr, Gap: o.reorderGap}
	}
	cfg := o.iface
	cfg.Properties = p
	return cfg, nil
}
