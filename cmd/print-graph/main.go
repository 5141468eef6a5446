package main

import (
	"fmt"
	"os"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer"
	"github.com/pattyshack/starling/analyzer/allocator"
	"github.com/pattyshack/starling/analyzer/rootmap"
	"github.com/pattyshack/starling/analyzer/scheduler"
	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/metadata"
	"github.com/pattyshack/starling/parser"
	"github.com/pattyshack/starling/platform"
	"github.com/pattyshack/starling/platform/amd64"
)

func main() {
	targetPlatform := amd64.NewPlatform(platform.Linux)

	for _, fileName := range os.Args[1:] {
		fmt.Println("=====================")
		fmt.Println("File name:", fileName)
		fmt.Println("---------------------")
		content, err := os.ReadFile(fileName)
		if err != nil {
			fmt.Println("ReadFile error:", err)
			continue
		}

		emitter := &parseutil.Emitter{}
		graph := parser.Parse(fileName, content, emitter)

		var method *analyzer.CompiledMethod
		if graph != nil {
			method, err = analyzer.Compile(
				graph,
				targetPlatform,
				scheduler.DefaultConfig(),
				emitter)
			if err != nil {
				fmt.Println("Compile error:", err)
				continue
			}

			fmt.Println(ast.GraphString(graph))
		}

		if method != nil {
			util.Process(
				graph,
				[]util.Pass[*ast.Graph]{
					allocator.PrintLiveness(os.Stdout),
					allocator.Debug(method.Allocator, os.Stdout),
					rootmap.PrintRootMaps(method.RootMaps, os.Stdout),
				},
				nil)

			encoded, err := metadata.Encode(
				method.Frame().TotalFrameSize,
				method.RootMaps,
				metadata.Options{Compress: true})
			if err != nil {
				fmt.Println("Encode error:", err)
			} else {
				fmt.Printf("Root map table: %d bytes\n", len(encoded))
			}
		}

		errs := emitter.Errors()
		if len(errs) > 0 {
			fmt.Println("---------------------------")
			fmt.Println("Found", len(errs), "errors:")
			fmt.Println("---------------------------")
			for idx, err := range errs {
				fmt.Printf("error %d: %s\n", idx, err)
			}
		}
	}
}
