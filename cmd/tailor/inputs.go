package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tailor/internal/config"
)

// inputFlags collects pipeline inputs from the command line. Later sources
// win: the JSON file, then --input-file, then --input.
type inputFlags struct {
	pairs     []string
	filePairs []string
	jsonPath  string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.pairs, "input", "i", nil, "Input value as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&f.filePairs, "input-file", nil, "Input read from a file as name=path (repeatable)")
	cmd.Flags().StringVar(&f.jsonPath, "inputs", "", "JSON file holding an object of inputs")
}

func (f *inputFlags) resolve() (map[string]any, error) {
	inputs := make(map[string]any)
	if path := strings.TrimSpace(f.jsonPath); path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("read inputs file: %w", err)
		}
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("parse inputs file %s: %w", expanded, err)
		}
	}
	for _, pair := range f.filePairs {
		name, path, err := splitPair(pair, "--input-file")
		if err != nil {
			return nil, err
		}
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("read input %s: %w", name, err)
		}
		inputs[name] = string(data)
	}
	for _, pair := range f.pairs {
		name, value, err := splitPair(pair, "--input")
		if err != nil {
			return nil, err
		}
		inputs[name] = value
	}
	return inputs, nil
}

func splitPair(pair, flag string) (string, string, error) {
	name, value, ok := strings.Cut(pair, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("%s expects name=value, got %q", flag, pair)
	}
	return name, value, nil
}
