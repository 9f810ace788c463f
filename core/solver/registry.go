package solver

import (
	"time"

	"github.com/kilianp07/obsched/core/factory"
	"github.com/kilianp07/obsched/core/ilp"
)

// Solver type names accepted by New.
const (
	TypeBranchAndBound = "branch_and_bound"
	TypeGreedy         = "greedy"
	TypeRelaxation     = "relaxation"
)

// DefaultTimeLimit is the time limit configuration applies when none is set.
const DefaultTimeLimit = 30 * time.Second

// Registry holds the solver factories.
var Registry = factory.NewRegistry[ilp.Solver]()

func register(name string, build func(Options) ilp.Solver) {
	_ = Registry.Register(name, func(conf map[string]any) (ilp.Solver, error) {
		var opts Options
		if err := factory.Decode(conf, &opts); err != nil {
			return nil, err
		}
		return build(opts), nil
	})
}

func init() {
	register(TypeBranchAndBound, func(o Options) ilp.Solver { return NewBranchAndBound(o) })
	register(TypeGreedy, func(o Options) ilp.Solver { return NewGreedy(o) })
	register(TypeRelaxation, func(o Options) ilp.Solver { return NewRelaxation(o) })
}

// New instantiates the configured solver. An empty type selects
// branch-and-bound.
func New(cfg factory.ModuleConfig) (ilp.Solver, error) {
	if cfg.Type == "" {
		cfg.Type = TypeBranchAndBound
	}
	return Registry.Create(cfg)
}
