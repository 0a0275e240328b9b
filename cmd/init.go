package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/habedi/glm/config"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/habedi/glm/repo"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// initCmd writes the configuration file for first-time use.
func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Initialize glm for first-time use",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, bufio.NewReader(cmd.InOrStdin()))
		},
	}
	return cmd
}

func runInit(cmd *cobra.Command, in *bufio.Reader) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}

	cmd.Println("Please enter the location of your game repository.")
	cmd.Println("Use a mounted directory such as /mnt/games or the URL of a file server.")
	url, err := promptForInput(cmd, in, "Repository", cfg.Repository.URL)
	if err != nil {
		return err
	}
	if url == "" {
		return clierr.New(clierr.Validation, "The repository location cannot be empty.", nil)
	}
	cfg.Repository.URL = url

	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if cfg.Repository.Username, err = promptForInput(cmd, in, "Username (empty for none)", cfg.Repository.Username); err != nil {
			return err
		}
		if cfg.Repository.Username != "" {
			if cfg.Repository.Password, err = promptForPassword(cmd, in, "Password"); err != nil {
				return err
			}
		}
	}

	if cfg.Paths.InstallDir, err = promptForInput(cmd, in, "Install directory", cfg.Paths.InstallDir); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	src, err := repo.Open(cfg.RepoOptions())
	if err != nil {
		return clierr.New(clierr.Validation, "Invalid repository: "+err.Error(), err)
	}
	games, err := repo.ListGames(cmd.Context(), src)
	if err != nil {
		return clierr.New(clierr.Validation, "Cannot read the repository: "+err.Error(), err)
	}
	cmd.Printf("Found %d games in the repository.\n", len(games))
	if err := cfg.Save(configPath); err != nil {
		return clierr.New(clierr.Internal, "Failed to save the configuration.", err)
	}
	cmd.Printf("Configuration saved to %s\n", configPath)
	return nil
}

// promptForInput asks for a value; an empty answer keeps def.
func promptForInput(cmd *cobra.Command, in *bufio.Reader, prompt, def string) (string, error) {
	if def != "" {
		cmd.Printf("%s [%s]: ", prompt, def)
	} else {
		cmd.Printf("%s: ", prompt)
	}
	input, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", clierr.New(clierr.Internal, "Failed to read input.", err)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	return input, nil
}

// promptForPassword reads a password without echo when stdin is a terminal.
func promptForPassword(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	cmd.Printf("%s: ", prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout()) // Print a newline for better formatting
		if err != nil {
			return "", clierr.New(clierr.Internal, "Failed to read password.", err)
		}
		return strings.TrimSpace(string(password)), nil
	}
	input, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", clierr.New(clierr.Internal, "Failed to read password.", err)
	}
	return strings.TrimSpace(input), nil
}
