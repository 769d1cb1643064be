package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/autoboat/am"
	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/sym"
)

func newAmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "am",
		Short: sym.AM + " Manage autoboat configuration",
		Long: sym.AM + ` am: manage autoboat configuration ("I am")

Configuration sources (later wins):
1. Default values
2. System config (/etc/autoboat/config.toml)
3. User config (~/.autoboat/am.toml)
4. Project config (am.toml in this or a parent directory)
5. Environment variables (AUTOBOAT_* prefix, TOKEN for the gateway token)
6. --config path

Examples:
  autoboat am init                # Write a starter user config
  autoboat am show                # Show the merged configuration
  autoboat am show --format json  # ... as JSON
  autoboat am where               # Which source set each key
  autoboat am disable collect     # Stop scheduling collect`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the merged configuration (token redacted)",
		RunE:  runAmShow,
	}
	show.Flags().String("format", "toml", "Output format: toml, json, yaml")

	where := &cobra.Command{
		Use:   "where",
		Short: "Show where each setting comes from",
		RunE:  runAmWhere,
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the merged configuration",
		RunE:  runAmValidate,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Long:  "Write the default configuration to path (default ~/.autoboat/am.toml).",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAmInit,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file (it is backed up first)")

	enable := &cobra.Command{
		Use:   "enable <command>",
		Short: "Enable a command in the active config file",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], true) },
	}
	disable := &cobra.Command{
		Use:   "disable <command>",
		Short: "Disable a command in the active config file",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], false) },
	}

	cmd.AddCommand(show, where, validate, initCmd, enable, disable)
	return cmd
}

func runAmShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := am.Load(explicitConfig(cmd))
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	redacted := *cfg
	redacted.Gateway.Token = am.Redact(cfg.Gateway.Token)

	out := cmd.OutOrStdout()
	switch format {
	case "toml":
		data, err := am.MarshalTOML(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# autoboat configuration\n%s", data)

	case "json":
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(redacted)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# autoboat configuration\n%s", data)

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	explicit := explicitConfig(cmd)
	v, sources, err := am.NewViper(explicit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	files := pterm.TableData{{"Source", "Path", "Present"}}
	candidates := am.ConfigCandidates()
	if explicit != "" {
		candidates = append(candidates, am.SourceInfo{Source: am.SourceExplicit, Path: explicit})
	}
	for _, c := range candidates {
		present := "no"
		if fileExists(c.Path) {
			present = "yes"
		}
		files = append(files, []string{string(c.Source), c.Path, present})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(files).Render(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	settings := pterm.TableData{{"Key", "Value", "Source"}}
	for _, s := range am.Introspect(v, sources) {
		origin := string(s.Source)
		if s.SourcePath != "" {
			origin += " (" + s.SourcePath + ")"
		}
		settings = append(settings, []string{s.Key, fmt.Sprint(s.Value), origin})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(settings).Render()
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Println("Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		p, err := am.UserConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := am.WriteDefaultConfig(path, force); err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Wrote %s", path)
	pterm.Info.WithWriter(cmd.OutOrStdout()).Println("Set gateway.url and gateway.channel_id, and put TOKEN=... in the environment or gateway.token_file")
	return nil
}

// setEnabled edits the active config file, or the user config when none exists yet
func setEnabled(cmd *cobra.Command, name string, enabled bool) error {
	cfg, err := am.Load(explicitConfig(cmd))
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if _, ok := cfg.Commands[name]; !ok {
		return errors.WithHintf(errors.NewNotFoundError("unknown command %q", name),
			"add a [commands.%s] table with a command = \"...\" line first", name)
	}

	path := am.ActiveConfigFile(explicitConfig(cmd))
	if path == "" {
		if path, err = am.UserConfigPath(); err != nil {
			return err
		}
	}
	if err := am.UpdateCommandEnabled(path, name, enabled); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("%s %s in %s", name, state, path)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
