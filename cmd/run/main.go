package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-engine/engine"
	"github.com/wippyai/wasm-engine/runtime"
	"github.com/wippyai/wasm-engine/wasm"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to wasm module file")
		funcName    = flag.String("func", "", "Exported function to call")
		argList     = flag.String("args", "", "Comma-separated arguments, parsed per the function signature")
		list        = flag.Bool("list", false, "List module contents and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> -func name [-args 1,2,...]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			engine.SetLogger(l)
			runtime.SetLogger(l)
			defer l.Sync()
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *funcName, *argList, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, funcName, argList string, listOnly bool) error {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	src, err := runtime.NewSource(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	defer src.Close()

	mod := src.Module()
	fmt.Printf("Module: %s\n", wasmFile)
	fmt.Printf("Types: %d  Functions: %d  Imports: %d  Exports: %d\n",
		len(mod.Types), len(mod.Code), len(mod.Imports), len(mod.Exports))
	if name, ok := src.StartName(); ok {
		fmt.Printf("Start: %s\n", name)
	}

	fmt.Printf("\nExported functions:\n")
	for _, sig := range exportedFuncs(mod) {
		fmt.Printf("  %s%s\n", sig.name, sig.typeStr)
	}

	if listOnly {
		if len(mod.Imports) > 0 {
			fmt.Printf("\nImports:\n")
			for _, imp := range mod.Imports {
				fmt.Printf("  %s.%s (%s)\n", imp.Module, imp.Field, wasm.ExportKindName(imp.Kind))
			}
		}
		return nil
	}

	if funcName == "" {
		return fmt.Errorf("no function named; use -func or -list")
	}

	sig, err := exportSignature(mod, funcName)
	if err != nil {
		return err
	}
	args, err := parseArgs(sig, argList)
	if err != nil {
		return err
	}

	inst := src.Instantiate(runtime.NewImportTable())
	defer inst.Close()

	result, ok, err := inst.Call(funcName, args...)
	if err != nil {
		return err
	}
	switch {
	case inst.IsTrapped():
		fmt.Printf("\n%s trapped\n", funcName)
	case ok:
		fmt.Printf("\n%s = %s\n", funcName, result)
	default:
		fmt.Printf("\n%s returned (void)\n", funcName)
	}
	return nil
}

type funcSig struct {
	name    string
	typeStr string
	params  []wasm.ValType
}

func exportedFuncs(mod *wasm.Module) []funcSig {
	numImported := mod.NumImportedFuncs()
	var out []funcSig
	for _, e := range mod.Exports {
		if e.Kind != wasm.KindFunc || e.Index < numImported {
			continue
		}
		ft, err := mod.FuncSignature(e.Index - numImported)
		if err != nil {
			continue
		}
		out = append(out, funcSig{name: e.Name, typeStr: ft.String(), params: ft.Params})
	}
	return out
}

func exportSignature(mod *wasm.Module, name string) (*wasm.FuncType, error) {
	e, ok := mod.ExportNamed(name)
	if !ok || e.Kind != wasm.KindFunc {
		return nil, fmt.Errorf("no exported function %q", name)
	}
	return mod.FuncSignature(e.Index - mod.NumImportedFuncs())
}

// parseArgs converts the comma-separated argument list into typed
// cells, guided by the function signature.
func parseArgs(sig *wasm.FuncType, argList string) ([]runtime.Value, error) {
	var fields []string
	if argList != "" {
		fields = strings.Split(argList, ",")
	}
	if len(fields) != len(sig.Params) {
		return nil, fmt.Errorf("signature %s takes %d arguments, got %d", sig, len(sig.Params), len(fields))
	}

	args := make([]runtime.Value, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		v, err := parseValue(sig.Params[i], f)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseValue(t wasm.ValType, s string) (runtime.Value, error) {
	switch t {
	case wasm.ValI32:
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return runtime.Value{}, fmt.Errorf("%q is not an i32: %w", s, err)
		}
		return runtime.I32(int32(n)), nil
	case wasm.ValI64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return runtime.Value{}, fmt.Errorf("%q is not an i64: %w", s, err)
		}
		return runtime.I64(n), nil
	case wasm.ValF32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return runtime.Value{}, fmt.Errorf("%q is not an f32: %w", s, err)
		}
		return runtime.F32(float32(f)), nil
	case wasm.ValF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return runtime.Value{}, fmt.Errorf("%q is not an f64: %w", s, err)
		}
		return runtime.F64(f), nil
	}
	return runtime.Value{}, fmt.Errorf("cannot pass %s from the command line", t)
}
