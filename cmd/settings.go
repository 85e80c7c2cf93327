package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/postsignal/internal/bus"
)

var (
	settingsBusURL string
	settingsFormat string
	settingsPrefs  []string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the worker's settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(settingsFormat); err != nil {
			return err
		}
		ch, release, err := openChannel(cmd.Context(), settingsBusURL)
		if err != nil {
			return err
		}
		defer release()

		res, err := bus.Call[bus.SettingsResult](cmd.Context(), ch, bus.GetSettings, nil)
		if err != nil {
			return err
		}
		return writeSettings(cmd.OutOrStdout(), settingsFormat, res.Settings)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store preferences given as --pref key=value",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(settingsFormat); err != nil {
			return err
		}
		prefs, err := parsePrefs(settingsPrefs)
		if err != nil {
			return err
		}
		ch, release, err := openChannel(cmd.Context(), settingsBusURL)
		if err != nil {
			return err
		}
		defer release()

		cur, err := bus.Call[bus.SettingsResult](cmd.Context(), ch, bus.GetSettings, nil)
		if err != nil {
			return err
		}
		next := cur.Settings
		if next.Preferences == nil {
			next.Preferences = make(map[string]any, len(prefs))
		}
		for k, v := range prefs {
			next.Preferences[k] = v
		}

		res, err := bus.Call[bus.SettingsResult](cmd.Context(), ch, bus.UpdateSettings, bus.SettingsRequest{Settings: next})
		if err != nil {
			return err
		}
		return writeSettings(cmd.OutOrStdout(), settingsFormat, res.Settings)
	},
}

func toggleCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(settingsFormat); err != nil {
				return err
			}
			ch, release, err := openChannel(cmd.Context(), settingsBusURL)
			if err != nil {
				return err
			}
			defer release()

			res, err := bus.Call[bus.SettingsResult](cmd.Context(), ch, bus.ToggleExtension, bus.ToggleRequest{Enabled: enabled})
			if err != nil {
				return err
			}
			return writeSettings(cmd.OutOrStdout(), settingsFormat, res.Settings)
		},
	}
}

// parsePrefs splits key=value pairs.
func parsePrefs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, eris.Errorf("settings: invalid --pref %q (want key=value)", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil, eris.New("settings: at least one --pref is required")
	}
	return out, nil
}

func init() {
	settingsCmd.PersistentFlags().StringVar(&settingsBusURL, "bus-url", "", "remote worker URL (default: in-process worker)")
	settingsCmd.PersistentFlags().StringVarP(&settingsFormat, "format", "f", formatTable, "output format: table, yaml or json")
	settingsSetCmd.Flags().StringArrayVar(&settingsPrefs, "pref", nil, "preference as key=value (repeatable)")

	settingsCmd.AddCommand(
		settingsSetCmd,
		toggleCmd("enable", "Resume scanning", true),
		toggleCmd("disable", "Pause scanning", false),
	)
	rootCmd.AddCommand(settingsCmd)
}
