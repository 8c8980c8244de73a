package api

type TopoConfig struct {
	DefaultBandwidth string      `yaml:"defaultBandwidth"`
	Interfaces       []Interface `yaml:"interfaces"`
	Links            []Link      `yaml:"links"`
}
