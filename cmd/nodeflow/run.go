package main

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentstation/nodeflow"
	"github.com/agentstation/nodeflow/exec"
	"github.com/agentstation/nodeflow/yaml"
)

var runCmd = &cobra.Command{
	Use:   "run <file.yaml>",
	Short: "Execute a graph from a YAML definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, loader, builder, err := load(args[0])
		if err != nil {
			return err
		}
		if verbose {
			log.Printf("loaded graph %q: %d sources, %d nodes, %d sinks",
				def.Name, len(def.Sources), len(def.Nodes), len(def.Sinks))
		}

		executor := exec.NewExecutor()
		if err := builder.Run(cmd.Context(), executor); err != nil {
			return fmt.Errorf("run %q: %w", def.Name, err)
		}

		printResults(loader.Results())
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file.yaml>",
	Short: "Validate a graph definition without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, _, _, err := load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: valid\n", def.Name)
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file.yaml>",
	Short: "Print the GraphViz dot rendering of a graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, builder, err := load(args[0])
		if err != nil {
			return err
		}
		return builder.Dump(os.Stdout)
	},
}

func load(path string) (*yaml.GraphDefinition, *yaml.Loader, *nodeflow.Builder, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-provided definition file
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	def, err := yaml.Parse(data)
	if err != nil {
		return nil, nil, nil, err
	}
	loader := yaml.NewLoader()
	b, err := loader.Build(def)
	if err != nil {
		return nil, nil, nil, err
	}
	return def, loader, b, nil
}

func printResults(results map[string]map[string]any) {
	sinks := make([]string, 0, len(results))
	for name := range results {
		sinks = append(sinks, name)
	}
	sort.Strings(sinks)
	for _, name := range sinks {
		vals := results[name]
		keys := make([]string, 0, len(vals))
		for k := range vals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("%s:", name)
		for _, k := range keys {
			fmt.Printf(" %s=%v", k, vals[k])
		}
		fmt.Println()
	}
}
