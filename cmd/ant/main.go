// Command ant runs JavaScript files or inline expressions on the ant
// runtime core. It is the minimal CLI surface: no package manager, REPL,
// or module resolution, which live in separate tools layered on the same
// embedder API.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	ant "github.com/theMackabu/ant"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ant", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: ant [--eval SRC] [--print] [--initial-mem MB] [--max-mem MB] [--gct N] [-d] [--version] [module.js]")
		fs.PrintDefaults()
	}

	var (
		evalSrc    = fs.String("eval", "", "evaluate SRC instead of reading a module file")
		printLast  = fs.Bool("print", false, "print the final expression's value to stdout")
		initialMem = fs.Uint64("initial-mem", 0, "initial heap size in MiB")
		maxMem     = fs.Uint64("max-mem", 0, "maximum heap size in MiB")
		gct        = fs.Uint64("gct", 0, "GC trigger threshold in bytes (0 = automatic)")
		debugDump  = fs.Bool("d", false, "dump runtime stats after execution")
		version    = fs.Bool("version", false, "print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *version {
		printVersion()
		return 0
	}

	src := *evalSrc
	filename := "<eval>"
	switch {
	case src != "" && fs.NArg() > 0:
		fmt.Fprintln(os.Stderr, "ant: --eval and a module file are mutually exclusive")
		return 1
	case src == "" && fs.NArg() == 0:
		fs.Usage()
		return 1
	case src == "":
		path := fs.Arg(0)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ant: %v\n", err)
			return 1
		}
		src = string(data)
		filename = path
	}

	var opts []ant.Option
	if *initialMem > 0 {
		opts = append(opts, ant.WithInitialMemory(*initialMem<<20))
	}
	if *maxMem > 0 {
		opts = append(opts, ant.WithMaxMemory(*maxMem<<20))
	}
	if *gct > 0 {
		opts = append(opts, ant.WithGCThreshold(*gct))
	}
	opts = append(opts, ant.WithFilename(filename))

	rt, err := ant.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ant: %v\n", err)
		return 1
	}
	defer rt.Close()

	rt.OnUnhandledRejection(func(reason ant.Value) {
		s, err := rt.ToString(reason)
		if err != nil {
			s = "<unprintable>"
		}
		fmt.Fprintf(os.Stderr, "ant: unhandled promise rejection: %s\n", s)
	})

	result, err := rt.Eval(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, ant.FormatError(err, ant.ColorAuto))
		return 1
	}
	if err := rt.RunEventLoop(); err != nil {
		fmt.Fprintln(os.Stderr, ant.FormatError(err, ant.ColorAuto))
		return 1
	}

	if *printLast {
		fmt.Println(rt.Dump(result))
	}
	if *debugDump {
		st := rt.Stats()
		fmt.Fprintf(os.Stderr, "ant: brk=%d committed=%d alloc-since-gc=%d pinned=%d coros=%d\n",
			st.Brk, st.Committed, st.AllocSinceGC, st.PinnedRoots, st.LiveCoros)
	}
	return 0
}

func printVersion() {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Printf("ant %s\n", version)
}
