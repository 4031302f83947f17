package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/benvon/gateway-console/internal/configstore"
	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/validation"
	"github.com/benvon/gateway-console/internal/views"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errSaveNotAccepted is returned when the gateway did not store the settings.
var errSaveNotAccepted = errors.New("settings were not saved")

// NewSettingsCmd creates the settings command with show, set, toggle and apply subcommands.
func NewSettingsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change gateway settings",
		Long:  "Read the gateway configuration, edit fields and save the whole document back.",
	}
	cmd.AddCommand(newSettingsShowCmd(opts))
	cmd.AddCommand(newSettingsSetCmd(opts))
	cmd.AddCommand(newSettingsToggleCmd(opts))
	cmd.AddCommand(newSettingsApplyCmd(opts))
	return cmd
}

// openSettings loads the gateway settings into a mounted form. Editing
// defaults and saving them over the real configuration is never wanted from
// the command line, so a failed load is an error here.
func openSettings(ctx context.Context, s *session) (*views.SettingsView, error) {
	view := views.NewSettingsView(configstore.New(s.client, s.log), s.log)
	if err := view.Init(ctx); err != nil {
		view.Teardown()
		return nil, fmt.Errorf("load gateway settings from %s: %w", s.client.BaseURL(), err)
	}
	select {
	case <-view.Mounted():
	case <-ctx.Done():
		view.Teardown()
		return nil, ctx.Err()
	}
	return view, nil
}

func newSettingsShowCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the gateway settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			s, err := opts.session()
			if err != nil {
				return err
			}
			defer s.close()

			view, err := openSettings(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer view.Teardown()

			out := cmd.OutOrStdout()
			cfg := view.Current()
			if output != outputText {
				return writeStructured(out, output, cfg)
			}
			if err := view.Render(out); err != nil {
				return err
			}
			printWarnings(out, cfg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func newSettingsSetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "set name=value [name=value...]",
		Short:   "Change settings and save",
		Example: "  gatewayctl settings set rate_limit_per_minute=250 target_backend_url=http://api:3001",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments := make([][2]string, 0, len(args))
			for _, arg := range args {
				name, value, ok := strings.Cut(arg, "=")
				name = validation.SanitizeText(name)
				if !ok || name == "" {
					return fmt.Errorf("expected name=value, got %q", arg)
				}
				assignments = append(assignments, [2]string{name, value})
			}
			return editAndSave(cmd, opts, func(view *views.SettingsView) error {
				for _, a := range assignments {
					if err := view.Set(a[0], a[1]); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newSettingsToggleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "toggle feature [feature...]",
		Short:   "Flip feature switches and save",
		Long:    "Flip each named feature switch and save the whole document. Features: " + featureNames() + ".",
		Example: "  gatewayctl settings toggle cache_enabled waf_enabled",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSave(cmd, opts, func(view *views.SettingsView) error {
				for _, name := range args {
					if err := view.Toggle(name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newSettingsApplyCmd(opts *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a YAML settings profile and save",
		Long:  "Merge the fields present in a YAML profile into the gateway settings and save the result. Fields absent from the profile keep their current values.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read profile: %w", err)
			}
			profile, err := parseProfile(data)
			if err != nil {
				return fmt.Errorf("parse profile %s: %w", file, err)
			}
			return editAndSave(cmd, opts, func(view *views.SettingsView) error {
				return applyProfile(view, profile)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML profile to apply")
	return cmd
}

// editAndSave loads the settings, applies edit and saves the whole document.
func editAndSave(cmd *cobra.Command, opts *globalOptions, edit func(view *views.SettingsView) error) error {
	s, err := opts.session()
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	view, err := openSettings(ctx, s)
	if err != nil {
		return err
	}
	defer view.Teardown()

	if err := edit(view); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printWarnings(out, view.Current())

	result, err := view.Save(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, result.Message())
	if result.Outcome != configstore.SaveSucceeded {
		return fmt.Errorf("%w (%s): %w", errSaveNotAccepted, result.Outcome, result.Err)
	}
	return nil
}

func featureNames() string {
	flags := models.FeatureFlags()
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func printWarnings(w io.Writer, cfg models.GatewayConfiguration) {
	for _, warning := range validation.ConfigurationWarnings(cfg) {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// profileEntry is one field from a settings profile, in form order.
type profileEntry struct {
	field models.Field
	node  yaml.Node
}

// parseProfile reads a flat YAML mapping of field names to values. Unknown
// field names are rejected.
func parseProfile(data []byte) ([]profileEntry, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for name := range raw {
		if _, ok := models.Field(name).Kind(); !ok {
			return nil, fmt.Errorf("%w: %q", configstore.ErrUnknownField, name)
		}
	}
	var entries []profileEntry
	for _, f := range models.Fields() {
		if node, ok := raw[string(f)]; ok {
			entries = append(entries, profileEntry{field: f, node: node})
		}
	}
	return entries, nil
}

func applyProfile(view *views.SettingsView, entries []profileEntry) error {
	for _, e := range entries {
		kind, _ := e.field.Kind()
		if kind == models.FieldKindBool {
			var enabled bool
			if err := e.node.Decode(&enabled); err != nil {
				return fmt.Errorf("%s: expected true or false: %w", e.field, err)
			}
			if err := view.SetFeature(string(e.field), enabled); err != nil {
				return err
			}
			continue
		}
		if e.node.Kind != yaml.ScalarNode {
			return fmt.Errorf("%s: expected a scalar value", e.field)
		}
		value := e.node.Value
		if kind == models.FieldKindInt {
			if _, err := strconv.Atoi(value); err != nil {
				return fmt.Errorf("%s: expected an integer, got %q", e.field, value)
			}
		}
		if err := view.Set(string(e.field), value); err != nil {
			return err
		}
	}
	return nil
}
