// Package factory is a small generic registry that instantiates pluggable
// modules (solvers, metric sinks, run log stores) from configuration. A
// module is selected by a type string and configured by a map of raw
// settings decoded with Decode.
//
//	reg := factory.NewRegistry[ilp.Solver]()
//	reg.Register("greedy", func(conf map[string]any) (ilp.Solver, error) {
//	    var o solver.Options
//	    if err := factory.Decode(conf, &o); err != nil {
//	        return nil, err
//	    }
//	    return solver.NewGreedy(o), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "greedy"})
package factory
