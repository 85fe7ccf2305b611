// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/playbook-assistant/internal/config"
	"github.com/your-org/playbook-assistant/internal/entities"
	"github.com/your-org/playbook-assistant/internal/generator"
	"github.com/your-org/playbook-assistant/internal/logging"
	"github.com/your-org/playbook-assistant/internal/pipeline"
	"github.com/your-org/playbook-assistant/internal/playbook"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
)

var (
	// ErrPromptRejected is returned by check when the guard rail rejects a prompt
	ErrPromptRejected = errors.New("prompt rejected")
	// ErrInvalidPlaybook is returned by lint when diagnostics remain
	ErrInvalidPlaybook = errors.New("playbook has validation errors")
)

// app carries the streams and global flags shared by all commands
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	output     string
	verbose    bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "playbookctl",
		Short:         "Classify infrastructure prompts and generate, lint and fix Ansible playbooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.output != OutputText && a.output != OutputJSON {
				return fmt.Errorf("unknown output format %q (want %s or %s)", a.output, OutputText, OutputJSON)
			}
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", OutputText, "Output format: text or json")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	root.AddCommand(
		newClassifyCmd(a),
		newCheckCmd(a),
		newLintCmd(a),
		newFixCmd(a),
		newGenerateCmd(a),
	)
	return root
}

func (a *app) logger() *zap.Logger {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(config.LoggingConfig{Level: level, Format: "text", Output: "stderr"})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a file, or stdin for "-"
func (a *app) readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read playbook: %w", err)
	}
	return string(data), nil
}

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <prompt>",
		Short: "Show the intent, entities, deployment context and complexity of a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			prompts := pipeline.ClassifyPrompt(prompt)
			dep := pipeline.ClassifyDeployment(prompt)

			if a.output == OutputJSON {
				return a.printJSON(struct {
					pipeline.PromptClassification
					Deployment pipeline.DeploymentClassification `json:"deployment"`
				}{prompts, dep})
			}

			fmt.Fprintf(a.stdout, "intent:      %s (%.2f)\n", prompts.Intent.Primary, prompts.Intent.Confidence)
			if len(prompts.Intent.Secondary) > 0 {
				fmt.Fprintf(a.stdout, "secondary:   %s\n", strings.Join(prompts.Intent.Secondary, ", "))
			}
			for _, t := range []entities.Type{
				entities.TypeService, entities.TypePlatform, entities.TypeEnvironment,
				entities.TypeAction, entities.TypeSecurity, entities.TypeInfrastructure,
			} {
				if values := entities.Values(prompts.Entities, t); len(values) > 0 {
					fmt.Fprintf(a.stdout, "%-12s %s\n", string(t)+":", strings.Join(values, ", "))
				}
			}
			fmt.Fprintf(a.stdout, "context:     %s (%.2f) %s\n", dep.Context.Context, dep.Context.Confidence, dep.Context.Reason)
			fmt.Fprintf(a.stdout, "complexity:  %s (score %d)\n", dep.Complexity.Tier, dep.Complexity.Score)
			for _, r := range dep.Complexity.Reasons {
				fmt.Fprintf(a.stdout, "  - %s\n", r)
			}
			return nil
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <prompt>",
		Short: "Run the guard rail over a prompt",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			verdict := pipeline.ValidatePrompt(strings.Join(args, " "))

			if a.output == OutputJSON {
				if err := a.printJSON(verdict); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(a.stdout, "%s (confidence %d)\n", verdict.Category, verdict.Confidence)
				if len(verdict.DetectedTerms) > 0 {
					fmt.Fprintf(a.stdout, "terms: %s\n", strings.Join(verdict.DetectedTerms, ", "))
				}
				if !verdict.IsValid {
					fmt.Fprintln(a.stdout, pipeline.RejectionMessage(verdict))
					for _, s := range verdict.Suggestions {
						fmt.Fprintf(a.stdout, "  - %s\n", s)
					}
				}
			}

			if !verdict.IsValid {
				return ErrPromptRejected
			}
			return nil
		},
	}
}

func newLintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file>",
		Short: "Validate a playbook file (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			result := pipeline.ValidateDocument(text)

			if a.output == OutputJSON {
				if err := a.printJSON(result); err != nil {
					return err
				}
			} else {
				printDiagnostics(a.stdout, args[0], result.Diagnostics)
				if result.Valid {
					fmt.Fprintf(a.stdout, "%s: ok\n", args[0])
				}
			}

			if !result.Valid {
				return ErrInvalidPlaybook
			}
			return nil
		},
	}
}

func printDiagnostics(w io.Writer, name string, diags []playbook.Diagnostic) {
	for _, d := range diags {
		loc := name
		if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d", name, d.Line)
			if d.Column > 0 {
				loc = fmt.Sprintf("%s:%d", loc, d.Column)
			}
		}
		line := fmt.Sprintf("%s: [%s] %s", loc, d.Rule, d.Message)
		if d.Fixable {
			line += " (fix: " + d.FixID + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func newFixCmd(a *app) *cobra.Command {
	var (
		all   bool
		write bool
	)

	cmd := &cobra.Command{
		Use:   "fix <file>",
		Short: "Repair a playbook file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if write && args[0] == "-" {
				return errors.New("--write cannot be used with stdin")
			}
			text, err := a.readInput(args[0])
			if err != nil {
				return err
			}

			p := pipeline.New(pipeline.Options{}, nil, nil, nil, nil, a.logger())
			out, err := p.Fix(text, all)
			if err != nil {
				return err
			}

			if write {
				info, err := os.Stat(args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[0], []byte(out.Text), info.Mode().Perm()); err != nil {
					return fmt.Errorf("write playbook: %w", err)
				}
			}

			if a.output == OutputJSON {
				return a.printJSON(out)
			}
			if !write {
				fmt.Fprint(a.stdout, out.Text)
			}
			if len(out.Applied) > 0 {
				fmt.Fprintf(a.stderr, "applied: %s\n", strings.Join(out.Applied, ", "))
			}
			printDiagnostics(a.stderr, args[0], out.Validation.Diagnostics)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Run every fix instead of only those the diagnostics call for")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write the result back to the file")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		outPath     string
		tier        string
		environment string
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a validated playbook from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigPath: a.configPath, ValidateRequired: true})
			if err != nil {
				return err
			}
			logger := a.logger()

			var gen generator.Generator
			if cfg.OpenAI.APIKey != "" {
				g, err := generator.NewOpenAIGenerator(generator.Config{
					APIKey:      cfg.OpenAI.APIKey,
					BaseURL:     cfg.OpenAI.Endpoint,
					Model:       cfg.OpenAI.Model,
					MaxTokens:   cfg.OpenAI.MaxTokens,
					Temperature: float32(cfg.OpenAI.Temperature),
				}, logger)
				if err != nil {
					return err
				}
				gen = g
			}

			p := pipeline.New(pipeline.Options{
				Mode:               cfg.Generation.Mode,
				LLMFallback:        cfg.Generation.LLMFallback,
				MaxFixPasses:       cfg.Generation.MaxFixPasses,
				DefaultEnvironment: cfg.Generation.DefaultEnvironment,
			}, nil, gen, nil, nil, logger)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			result, err := p.Generate(ctx, pipeline.Request{
				Prompt:      strings.Join(args, " "),
				Environment: environment,
				Tier:        tier,
			})
			if err != nil {
				return err
			}

			if result.Rejected {
				fmt.Fprintln(a.stderr, result.Message)
				return ErrPromptRejected
			}

			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(result.Playbook), 0o644); err != nil {
					return fmt.Errorf("write playbook: %w", err)
				}
			}

			if a.output == OutputJSON {
				return a.printJSON(result)
			}
			if outPath == "" {
				fmt.Fprint(a.stdout, result.Playbook)
			}
			fmt.Fprintf(a.stderr, "template: %s, context: %s, tier: %s, source: %s\n",
				result.Template, result.Deployment.Context.Context, result.Deployment.Complexity.Tier, result.Source)
			printDiagnostics(a.stderr, "playbook", result.Validation.Diagnostics)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Write the playbook to this file instead of stdout")
	cmd.Flags().StringVar(&tier, "tier", "", "Force a complexity tier: basic, pro or enterprise")
	cmd.Flags().StringVar(&environment, "env", "", "Target environment name")
	return cmd
}
