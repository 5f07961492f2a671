package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/coherent/pkg/sdk"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Resolve the runner and models and report the session state",
		Flags: sessionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			session, err := initialize(ctx, cmd)
			if err != nil {
				return err
			}
			defer session.Close()

			st := session.State()
			fmt.Printf("state:  %s\n", st.Phase)
			fmt.Printf("models: %s\n", strings.Join(session.Models(), ", "))
			return nil
		},
	}
}

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List the models of the resolved bundle",
		Flags: sessionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			session, err := initialize(ctx, cmd)
			if err != nil {
				return err
			}
			defer session.Close()

			for _, id := range session.Models() {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func execCmd() *cli.Command {
	var (
		inputPairs []string
		inputsJSON string
	)

	return &cli.Command{
		Name:      "exec",
		Usage:     "Execute a model and print its outputs as JSON",
		ArgsUsage: "<model-id>",
		Flags: append(sessionFlags(),
			&cli.StringSliceFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "model input as key=value; values are parsed as JSON when possible",
				Destination: &inputPairs,
			},
			&cli.StringFlag{
				Name:        "inputs-json",
				Usage:       "model inputs as a JSON object; --input entries override it",
				Destination: &inputsJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			modelID := strings.TrimSpace(cmd.Args().First())
			if modelID == "" {
				return errors.New("exec: model id is required")
			}
			inputs, err := parseInputs(inputsJSON, inputPairs)
			if err != nil {
				return err
			}

			session, err := initialize(ctx, cmd)
			if err != nil {
				return err
			}
			defer session.Close()

			out, err := session.Execute(ctx, sdk.ExecutionRequest{ModelID: modelID, Inputs: inputs})
			session.FlushEvents()
			if err != nil {
				return fmt.Errorf("execute %s: %w", modelID, err)
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

// parseInputs merges a JSON object with key=value pairs. Pair values that
// parse as JSON keep their type, anything else is a string.
func parseInputs(raw string, pairs []string) (map[string]any, error) {
	var inputs map[string]any
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return nil, fmt.Errorf("parse --inputs-json: %w", err)
		}
	}
	if inputs == nil {
		inputs = make(map[string]any, len(pairs))
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --input %q: want key=value", p)
		}
		inputs[k] = parseValue(v)
	}
	return inputs, nil
}

func parseValue(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return v
	}
	return out
}
