package anthocnet

import "time"

// Config holds every tunable knob the routing table, packet codec and
// engine read. Field names mirror the original protocol constants so
// the defaults below are traceable back to the source values; YAML
// marshaling for Config lives in the config subpackage so this package
// stays free of a parsing dependency.
type Config struct {
	SNRCostMetric bool `yaml:"snr_cost_metric"`
	AntPort       int  `yaml:"ant_port"`

	HelloInterval        time.Duration `yaml:"hello_interval"`
	RtableUpdateInterval time.Duration `yaml:"rtable_update_interval"`
	PrAntInterval        time.Duration `yaml:"pr_ant_interval"`

	NbExpire      time.Duration `yaml:"nb_expire"`
	SessionExpire time.Duration `yaml:"session_expire"`
	DcacheExpire  time.Duration `yaml:"dcache_expire"`
	NoBroadcast   time.Duration `yaml:"no_broadcast"`

	AlphaTMac    float64 `yaml:"alpha_t_mac"`
	THop         float64 `yaml:"t_hop"`
	Alpha        float64 `yaml:"alpha"`
	Gamma        float64 `yaml:"gamma"`
	MinPheromone float64 `yaml:"min_pheromone"`
	EtaValue     float64 `yaml:"eta_value"`

	ProgBeta float64 `yaml:"prog_beta"`
	ConsBeta float64 `yaml:"cons_beta"`

	SNRThreshold float64 `yaml:"snr_threshold"`
	SNRMalus     float64 `yaml:"snr_malus"`

	InitialTTL           uint8 `yaml:"initial_ttl"`
	ReactiveBcastCount   uint8 `yaml:"reactive_bcast_count"`
	ProactiveBcastCount  uint8 `yaml:"proactive_bcast_count"`

	BlackholeMode        bool          `yaml:"blackhole_mode"`
	BlackholeActivation  time.Duration `yaml:"blackhole_activation"`
	BlackholeAmount      float64       `yaml:"blackhole_amount"`

	FuzzyMode bool `yaml:"fuzzy_mode"`
}

// DefaultConfig returns the knob defaults named in the protocol design.
func DefaultConfig() *Config {
	return &Config{
		SNRCostMetric: true,
		AntPort:       5555,

		HelloInterval:        time.Second,
		RtableUpdateInterval: time.Second,
		PrAntInterval:        time.Second,

		NbExpire:      2500 * time.Millisecond,
		SessionExpire: 10 * time.Second,
		DcacheExpire:  5 * time.Second,
		NoBroadcast:   100 * time.Millisecond,

		AlphaTMac:    0.7,
		THop:         0.2,
		Alpha:        0.7,
		Gamma:        0.7,
		MinPheromone: 1e-4,
		EtaValue:     0.7,

		ProgBeta: 2,
		ConsBeta: 20,

		SNRThreshold: 17,
		SNRMalus:     3,

		InitialTTL:          16,
		ReactiveBcastCount:  10,
		ProactiveBcastCount: 1,

		BlackholeMode:       false,
		BlackholeActivation: 0,
		BlackholeAmount:     0,

		FuzzyMode: false,
	}
}
