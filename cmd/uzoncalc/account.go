package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uyoufu/uzoncalc/pkg/config"
	"github.com/uyoufu/uzoncalc/pkg/notify"
)

// --- setting ---

var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Manage user settings stored on the server",
}

var settingGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newClient(consoleNotifier()).GetSetting(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("setting %q is not set", args[0])
		}
		return printValue(cmd.OutOrStdout(), v)
	},
}

var settingDescription string

var settingSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Create or replace a setting; the value is a YAML or JSON object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseSettingValue(args[1])
		if err != nil {
			return err
		}
		v, err := newClient(consoleNotifier()).UpsertSetting(cmd.Context(), args[0], value, settingDescription)
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), v)
	},
}

var settingDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient(consoleNotifier()).DeleteSetting(cmd.Context(), args[0])
	},
}

// parseSettingValue reads an object from s, or from a file when s starts
// with "@".
func parseSettingValue(s string) (map[string]any, error) {
	data := []byte(s)
	if len(s) > 1 && s[0] == '@' {
		b, err := os.ReadFile(s[1:])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s[1:], err)
		}
		data = b
	}
	var v map[string]any
	if json.Valid(data) {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse setting value: %w", err)
		}
		return v, nil
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse setting value: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("setting value must be an object")
	}
	return v, nil
}

// --- user ---

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Sign in and manage the current account",
}

var (
	loginPassword string
	loginLang     string
	loginNoSave   bool
)

var userLoginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in and remember the token in uzoncalc.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			password = os.Getenv("UZONCALC_PASSWORD")
		}
		if password == "" {
			p, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			password = p
		}

		res, err := newClient(consoleNotifier()).SignIn(cmd.Context(), args[0], password, loginLang)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", res.UserInfo.Username)
		if loginNoSave {
			fmt.Fprintln(cmd.OutOrStdout(), res.Token)
			return nil
		}

		path := cfg.Path
		if path == "" {
			path = config.FileName
		}
		cfg.Token = res.Token
		if err := cfg.Write(path); err != nil {
			return err
		}
		abs, _ := filepath.Abs(path)
		fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", abs)
		return nil
	},
}

var userInfoCmd = &cobra.Command{
	Use:   "info <username>",
	Short: "Show a user's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := newClient(consoleNotifier()).UserInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), u)
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the current user's password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		oldPassword, err := readPassword("Current password: ")
		if err != nil {
			return err
		}
		newPassword, err := readPassword("New password: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("Repeat new password: ")
		if err != nil {
			return err
		}
		if newPassword != confirm {
			return fmt.Errorf("passwords do not match")
		}
		ok, err := newClient(consoleNotifier()).ChangePassword(cmd.Context(), oldPassword, newPassword)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("password was not changed")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
		return nil
	},
}

func readPassword(prompt string) (string, error) {
	rl, err := readline.New("")
	if err != nil {
		return "", fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	b, err := rl.ReadPassword(prompt)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --- format ---

var (
	formatLineLength int
	formatWrite      bool
)

var formatCmd = &cobra.Command{
	Use:   "format <file.py>",
	Short: "Format report source with the server's Python formatter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		res, err := newClient(notify.Nop{}).FormatPython(cmd.Context(), string(code), formatLineLength)
		if err != nil {
			return fmt.Errorf("format %s: %w", args[0], err)
		}
		if !formatWrite {
			fmt.Fprint(cmd.OutOrStdout(), res.FormattedCode)
			return nil
		}
		if !res.Changed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already formatted\n", args[0])
			return nil
		}
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], []byte(res.FormattedCode), info.Mode().Perm()); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "formatted %s (%s)\n", args[0], res.Formatter)
		return nil
	},
}

func init() {
	settingSetCmd.Flags().StringVar(&settingDescription, "description", "", "Setting description")
	settingCmd.AddCommand(settingGetCmd, settingSetCmd, settingDeleteCmd)

	userLoginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (default: $UZONCALC_PASSWORD or prompt)")
	userLoginCmd.Flags().StringVar(&loginLang, "lang", "en-US", "Preferred language")
	userLoginCmd.Flags().BoolVar(&loginNoSave, "print-token", false, "Print the token instead of saving it")
	userCmd.AddCommand(userLoginCmd, userInfoCmd, userPasswdCmd)

	formatCmd.Flags().IntVar(&formatLineLength, "line-length", 0, "Maximum line length (default: server setting)")
	formatCmd.Flags().BoolVarP(&formatWrite, "write", "w", false, "Write the result back to the file")

	rootCmd.AddCommand(settingCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(formatCmd)
}
