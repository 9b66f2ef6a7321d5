package anthocnet

// LinkCost abstracts the per-link cost contribution T_ind fed into
// backward-ant pheromone deposition. The engine must not know whether
// the number underneath came from measured MAC turnaround time or an
// SNR proxy — that split lives entirely behind this interface.
type LinkCost interface {
	Cost(iface int, nb Addr) float64
}

// MACCost tracks a running average of measured turnaround time per
// (iface, neighbor) link, smoothed by alpha (Config.AlphaTMac).
type MACCost struct {
	alpha   float64
	samples map[neighborKey]float64
}

// NewMACCost constructs a MACCost smoothed by alpha.
func NewMACCost(alpha float64) *MACCost {
	return &MACCost{alpha: alpha, samples: make(map[neighborKey]float64)}
}

// Observe folds a freshly measured turnaround time t (seconds) for
// (iface, nb) into the running average.
func (m *MACCost) Observe(iface int, nb Addr, t float64) {
	key := neighborKey{Iface: iface, Addr: nb}
	if prev, ok := m.samples[key]; ok {
		m.samples[key] = m.alpha*prev + (1-m.alpha)*t
	} else {
		m.samples[key] = t
	}
}

// Cost returns the current running average, or 0 if never observed.
func (m *MACCost) Cost(iface int, nb Addr) float64 {
	return m.samples[neighborKey{Iface: iface, Addr: nb}]
}

// SNRSource supplies the most recently measured SNR (dB) for a link;
// the real implementation is layer-2 and out of this package's scope.
type SNRSource interface {
	SNR(iface int, nb Addr) float64
}

// SNRCost derives a cost from SNR: links at or above threshold cost
// nothing extra, links below it are penalized by malus per dB of
// shortfall, matching the source's snr_threshold/snr_malus knobs.
type SNRCost struct {
	source    SNRSource
	threshold float64
	malus     float64
}

// NewSNRCost constructs an SNRCost reading from source.
func NewSNRCost(source SNRSource, threshold, malus float64) *SNRCost {
	return &SNRCost{source: source, threshold: threshold, malus: malus}
}

func (s *SNRCost) Cost(iface int, nb Addr) float64 {
	snr := s.source.SNR(iface, nb)
	if snr >= s.threshold {
		return 0
	}
	return (s.threshold - snr) * s.malus
}
