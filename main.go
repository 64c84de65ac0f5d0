package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/taniselm/coretrim/solver"
)

var (
	verbose   bool
	doTrim    bool
	checkCore bool
	dumpCore  string
	coreUnits bool
	prefCore  bool
	unmark    bool
	reconstr  bool
	assume    []int
	constrain []int
)

func main() {
	debug.SetGCPercent(300)
	cmd := &cobra.Command{
		Use:          "coretrim [flags] file.cnf",
		Short:        "solve a DIMACS CNF problem and extract an unsatisfiable core",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	registerFlags(cmd.Flags())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&verbose, "verbose", false, "sets verbose mode on")
	flags.BoolVar(&doTrim, "trim", false, "on UNSAT, trim the proof and print core statistics")
	flags.BoolVar(&checkCore, "check-core", false, "verify the core with a fresh solver")
	flags.StringVar(&dumpCore, "dump-core", "", "dump the core CNF to the given file")
	flags.BoolVar(&coreUnits, "core-units", false, "mark reason clauses of undone trail literals core")
	flags.BoolVar(&prefCore, "prefer-core", false, "propagate on core watches first during replay")
	flags.BoolVar(&unmark, "unmark-core", false, "clear core marks after trimming")
	flags.BoolVar(&reconstr, "reconstruct", false, "discard the trimming proof tail afterwards")
	flags.IntSliceVar(&assume, "assume", nil, "assumption literals for this solve")
	flags.IntSliceVar(&constrain, "constrain", nil, "extra disjunctive constraint for this solve")
}

func run(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "could not open problem")
	}
	defer func() { _ = f.Close() }()
	pb, err := solver.ParseCNF(f)
	if err != nil {
		return errors.Wrapf(err, "could not parse %q", path)
	}
	fmt.Printf("c solving %s\n", path)
	s := solver.New(pb)
	s.Verbose = verbose

	var t *solver.Trimmer
	if doTrim || checkCore || dumpCore != "" {
		t = solver.NewTrimmer(s)
		t.Set("core_units", coreUnits)
		t.Set("prefer_core", prefCore)
		t.Set("unmark_core", unmark)
		t.Set("reconstruct", reconstr)
		t.Set("check_core", checkCore)
	}
	if len(assume) > 0 {
		s.Assume(toLits(assume))
	}
	if len(constrain) > 0 {
		s.Constrain(toLits(constrain))
	}

	status := s.Solve()
	s.OutputModel()
	if status != solver.Unsat || t == nil {
		return nil
	}

	if dumpCore != "" {
		w, err := os.Create(dumpCore)
		if err != nil {
			return errors.Wrap(err, "could not create core dump file")
		}
		defer func() { _ = w.Close() }()
		t.SetDump(w)
	}
	var core solver.CoreCollector
	t.Trim(&core)
	stats := t.Stats()
	fmt.Printf("c core: %d clauses, %d lemmas, %d variables\n",
		stats.Core.Clauses, stats.Core.Lemmas, stats.Core.Variables)
	for _, a := range core.Assumptions {
		fmt.Printf("c failed under assumption %d\n", a)
	}
	return nil
}

func toLits(ints []int) []solver.Lit {
	lits := make([]solver.Lit, len(ints))
	for i, v := range ints {
		lits[i] = solver.IntToLit(int32(v))
	}
	return lits
}
