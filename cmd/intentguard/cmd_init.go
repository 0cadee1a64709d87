package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"intentguard/pkg/config"
	"intentguard/pkg/protocol"
)

// intentsDoc is the on-disk shape of active_intents.yaml.
type intentsDoc struct {
	ActiveIntents []protocol.Intent `yaml:"active_intents"`
}

// exampleIntents seeds a fresh project.
func exampleIntents() intentsDoc {
	return intentsDoc{ActiveIntents: []protocol.Intent{{
		ID:                 "INT-001",
		Name:               "Example intent",
		Status:             protocol.StatusActive,
		OwnedScope:         []string{"src/**"},
		Constraints:        []string{"keep public APIs stable"},
		AcceptanceCriteria: []string{"tests pass"},
	}}}
}

// newInitCmd creates the "intentguard init" subcommand.
func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold .orchestration/ with an example intent and default policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := config.ResolvePaths(opts.root)
			if err != nil {
				return err
			}

			intents, err := yaml.Marshal(exampleIntents())
			if err != nil {
				return fmt.Errorf("encode example intents: %w", err)
			}
			policy, err := config.Default().Encode()
			if err != nil {
				return err
			}

			st := newStyles(cmd.OutOrStdout())
			for _, f := range []struct {
				path string
				data []byte
			}{
				{paths.IntentsPath, intents},
				{paths.PolicyPath, policy},
			} {
				created, err := writeScaffold(f.path, f.data, force)
				if err != nil {
					return err
				}
				rel, _ := filepath.Rel(paths.Root, f.path)
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", st.OK("created"), rel)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (exists, use --force to overwrite)\n", st.Muted("skipped"), rel)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

// writeScaffold writes data to path unless it exists and force is false.
func writeScaffold(path string, data []byte, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // project config, not secret
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
