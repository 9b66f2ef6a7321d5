package anthocnet

// ExponentSource supplies the exponents route selection raises pheromone
// to: cons_beta for reactive/unicast selection, prog_beta for proactive
// exploration. The fuzzy-inference engine that can compute these from
// live traffic signals is external (out of scope, like the source's
// AntHocNetFis wrapping a fuzzylite engine); this interface is the hook
// it would plug into.
type ExponentSource interface {
	ConsExponent() float64
	ProgExponent() float64
}

// StaticExponents is the default ExponentSource: the fixed Config
// values, used whenever Config.FuzzyMode is false or no FIS is wired in.
type StaticExponents struct {
	cfg *Config
}

// NewStaticExponents returns an ExponentSource backed by cfg's fixed
// beta values.
func NewStaticExponents(cfg *Config) StaticExponents {
	return StaticExponents{cfg: cfg}
}

func (s StaticExponents) ConsExponent() float64 { return s.cfg.ConsBeta }
func (s StaticExponents) ProgExponent() float64 { return s.cfg.ProgBeta }

// FIS is the narrow fuzzy-inference hook: two scalar inputs (e.g. a
// traffic-symmetry reading and a droprate reading), one scalar output.
// Nil means "not configured" — the engine falls back to
// StaticExponents.
type FIS func(x, y float64) float64

// FuzzyExponents adapts a FIS into an ExponentSource by evaluating it
// against the two signals its Update call is given; if no reading has
// been supplied yet it falls back to the static exponents.
type FuzzyExponents struct {
	fis      FIS
	fallback StaticExponents
	x, y     float64
	have     bool
}

// NewFuzzyExponents wraps fis, falling back to cfg's static betas until
// Update is called at least once.
func NewFuzzyExponents(fis FIS, cfg *Config) *FuzzyExponents {
	return &FuzzyExponents{fis: fis, fallback: NewStaticExponents(cfg)}
}

// Update feeds the latest two fuzzy-inference inputs.
func (f *FuzzyExponents) Update(x, y float64) {
	f.x, f.y = x, y
	f.have = true
}

func (f *FuzzyExponents) ConsExponent() float64 {
	if !f.have || f.fis == nil {
		return f.fallback.ConsExponent()
	}
	return f.fis(f.x, f.y)
}

func (f *FuzzyExponents) ProgExponent() float64 {
	if !f.have || f.fis == nil {
		return f.fallback.ProgExponent()
	}
	return f.fis(f.x, f.y)
}
