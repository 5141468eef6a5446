package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/scheduler"
	"github.com/pattyshack/starling/parser"
	"github.com/pattyshack/starling/platform"
	"github.com/pattyshack/starling/platform/amd64"
	"github.com/pattyshack/starling/stress"
)

// Usage: stress-schedule <num seeds | profiles.yaml> <graph.yaml>...
func main() {
	if len(os.Args) < 3 {
		fmt.Println(
			"Usage:", os.Args[0], "<num seeds | profiles.yaml> <graph.yaml>...")
		os.Exit(2)
	}

	configs, err := loadConfigs(os.Args[1])
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	harness := stress.NewHarness(amd64.NewPlatform(platform.Linux), 0)

	failed := false
	for _, fileName := range os.Args[2:] {
		fmt.Println("=====================")
		fmt.Println("File name:", fileName)
		fmt.Println("---------------------")
		content, err := os.ReadFile(fileName)
		if err != nil {
			fmt.Println("ReadFile error:", err)
			failed = true
			continue
		}

		emitter := &parseutil.Emitter{}
		graph := parser.Parse(fileName, content, emitter)
		if graph == nil {
			for idx, err := range emitter.Errors() {
				fmt.Printf("error %d: %s\n", idx, err)
			}
			failed = true
			continue
		}

		report, err := harness.RunConfigs(context.Background(), graph, configs)
		if err != nil {
			fmt.Println("Stress error:", err)
			failed = true
			continue
		}

		_ = report.Print(os.Stdout)
		if !report.OK() {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func loadConfigs(arg string) ([]scheduler.Config, error) {
	numSeeds, err := strconv.Atoi(arg)
	if err == nil {
		configs := []scheduler.Config{}
		for _, seed := range stress.Seeds(numSeeds) {
			configs = append(configs, scheduler.StressConfig(seed))
		}
		return configs, nil
	}

	file, err := os.Open(arg)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	profiles, err := scheduler.LoadProfiles(file)
	if err != nil {
		return nil, err
	}

	configs := []scheduler.Config{}
	for _, profile := range profiles {
		if profile.IsPerturbed() {
			configs = append(configs, profile.Config)
		}
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("%s has no perturbed profiles", arg)
	}
	return configs, nil
}
