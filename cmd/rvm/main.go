// Command rvm loads and runs a single class through the runtime: the
// equivalent of `java <class>` for this bytecode subset.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sasakiyu/rvm/pkg/native"
	"github.com/sasakiyu/rvm/pkg/vm"
)

func main() {
	classpath := flag.String("classpath", ".", "classpath root classes are resolved relative to")
	flag.StringVar(classpath, "cp", ".", "alias for -classpath")
	verbose := flag.Bool("v", false, "enable class-load tracing and RVM.logState() dumps")
	flag.BoolVar(verbose, "verbose", false, "alias for -v")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-classpath dir] [-v] <class-name>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if !*verbose {
		log.SetOutput(os.Stderr)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	rootClass := flag.Arg(0)

	if err := run(rootClass, *classpath, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", rootClass, err)
		os.Exit(1)
	}
}

func run(rootClass, classpath string, verbose bool) error {
	program := vm.NewProgram()
	heap := vm.NewHeap()
	loader := vm.NewClassLoader(classpath, program, heap, verbose)

	registry := native.NewRegistry(
		native.NewObjectProvider(),
		native.NewIntegerProvider(),
		native.NewStringBuilderProvider(),
		native.NewRVMProvider(os.Stdout),
	)

	machine := vm.NewVM(program, heap, loader, registry, verbose)
	return machine.Start(rootClass)
}
