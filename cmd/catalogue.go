package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/db"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/habedi/glm/pkg/operations"
	"github.com/habedi/glm/pkg/pool"
	"github.com/habedi/glm/pkg/validation"
	"github.com/habedi/glm/repo"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// catalogueCmd groups the commands that browse the cached catalogue.
func catalogueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "Manage the game catalogue",
	}

	// Add subcommands to the catalogue command
	cmd.AddCommand(
		listCmd(),
		searchCmd(),
		infoCmd(),
		refreshCmd(),
		exportCmd(),
	)

	return cmd
}

func gameRepository() db.GameRepository {
	return db.NewGameRepository(db.GetDB())
}

// listCmd shows the list of games in the catalogue
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the list all games in the catalogue",
		Args:  cobra.NoArgs,
		RunE:  listGames,
	}
}

func listGames(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Listing all games in the catalogue...")

	games, err := gameRepository().List(cmd.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch games from the game catalogue.")
		return clierr.New(clierr.Internal, "Unable to list games. Please check the logs for details.", err)
	}

	if len(games) == 0 {
		cmd.Println("No games found in the catalogue. Use `glm catalogue refresh` to update the catalogue.")
		return nil
	}

	renderGames(cmd, games)
	log.Info().Msgf("Successfully listed %d games in the catalogue.", len(games))
	return nil
}

func renderGames(cmd *cobra.Command, games []db.Game) {
	table := newTable(cmd.OutOrStdout(), []string{"Row ID", "Game ID", "Title", "Latest", "Size"})
	table.SetColMinWidth(2, 40) // Set minimum width for the Title column
	for i, game := range games {
		size := ""
		if s, err := game.Summary(); err == nil {
			size = formatBytes(s.Size)
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			game.ID,
			cleanTitle(game.Title),
			game.Latest,
			size,
		})
	}
	table.Render()
}

// infoCmd shows detailed information about a specific game
func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [gameID]",
		Short: "Show information about a specific game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showGameInfo(cmd, args[0])
		},
	}
}

func showGameInfo(cmd *cobra.Command, gameID string) error {
	if err := checkGameID(gameID); err != nil {
		return err
	}
	log.Info().Msgf("Fetching info for game %s", gameID)

	size, summary, err := operations.EstimateGameSize(cmd.Context(), gameRepository(), gameID)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to fetch info for game %s", gameID)
		return clierr.New(clierr.NotFound, fmt.Sprintf("No game %s in the catalogue. Use `glm catalogue refresh` to update it.", gameID), err)
	}

	cmd.Println("Game Information:")
	cmd.Printf("ID: %s\n", summary.GameID)
	cmd.Printf("Title: %s\n", summary.Title)
	if summary.Developer != "" {
		cmd.Printf("Developer: %s\n", summary.Developer)
	}
	if summary.Publisher != "" {
		cmd.Printf("Publisher: %s\n", summary.Publisher)
	}
	if summary.ReleaseDate != "" {
		cmd.Printf("Release date: %s\n", summary.ReleaseDate)
	}
	cmd.Printf("Latest version: %s\n", summary.Latest)
	cmd.Printf("Installers: %d, Patches: %d\n", summary.Installers, summary.Patches)
	cmd.Printf("Repository size: %s\n", formatBytes(size))

	state, err := db.NewStateStore(db.GetDB()).Load(cmd.Context(), gameID)
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to load the installed state", err)
	}
	if state != nil {
		cmd.Printf("Installed: %s in %s\n", state.Version, state.InstallPath)
	} else {
		cmd.Println("Installed: no")
	}
	if summary.Description != "" {
		cmd.Printf("\n%s\n", summary.Description)
	}
	return nil
}

// refreshCmd rebuilds the catalogue cache from the repository
func refreshCmd() *cobra.Command {
	var numThreads int

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Update the catalogue with the latest data from the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return refreshCatalogue(cmd, numThreads)
		},
	}

	cmd.Flags().IntVarP(&numThreads, "threads", "t", 0, "Number of games to read from the repository in parallel [1-20]; 0 uses the configured value")
	return cmd
}

func refreshCatalogue(cmd *cobra.Command, numThreads int) error {
	log.Info().Msg("Refreshing the game catalogue...")
	cfg := currentConfig()
	if numThreads == 0 {
		numThreads = cfg.Install.Threads
	}
	if err := validation.ValidateThreadCount(numThreads); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	builder, err := newBuilder(src, cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	entries, err := repo.ListGames(ctx, src)
	if err != nil {
		return remoteError("Failed to list the repository", err)
	}
	if len(entries) == 0 {
		cmd.Println("No games found in the repository.")
		return nil
	}
	log.Info().Msgf("Found %d game directories in the repository.", len(entries))

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Refreshing catalogue..."),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)

	results := pool.Map(ctx, entries, numThreads, func(ctx context.Context, e repo.Entry) (db.Game, error) {
		defer func() { _ = bar.Add(1) }()
		c, err := builder.Build(ctx, e.Name)
		if err != nil {
			return db.Game{}, err
		}
		return db.GameFromSummary(c.Summary())
	})
	_ = bar.Finish()

	if err := ctx.Err(); err != nil {
		return clierr.New(clierr.Internal, "Refresh cancelled; the catalogue was not changed.", err)
	}

	games := make([]db.Game, 0, len(results))
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Warn().Err(r.Err).Str("game", entries[r.Index].Name).Msg("Failed to read game")
			continue
		}
		games = append(games, r.Value)
	}
	if len(games) == 0 {
		return clierr.New(clierr.Remote, "Failed to read any game from the repository. Please check the logs for details.", nil)
	}

	if err := gameRepository().Replace(ctx, games); err != nil {
		return clierr.New(clierr.Internal, "Failed to store the catalogue", err)
	}
	if failed > 0 {
		cmd.Printf("Refreshing completed with %d errors. There are %d games in the catalogue.\n", failed, len(games))
	} else {
		cmd.Printf("Refreshing completed successfully. There are %d games in the catalogue.\n", len(games))
	}
	return nil
}

// searchCmd searches for games in the catalogue by ID or title
func searchCmd() *cobra.Command {
	var byID bool
	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Search for games in the catalogue by ID or title",
		Long:  "Search is case-insensitive and matches part of the game title or ID; with --id the term must be an exact game ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return searchGames(cmd, args[0], byID)
		},
	}

	cmd.Flags().BoolVarP(&byID, "id", "i", false, "Treat the term as an exact game ID")
	return cmd
}

func searchGames(cmd *cobra.Command, term string, byID bool) error {
	if err := validation.ValidateNonEmptyString("search term", term); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	repository := gameRepository()

	var games []db.Game
	if byID {
		log.Info().Msgf("Searching for game with ID=%s", term)
		game, err := repository.GetByID(cmd.Context(), term)
		if err != nil {
			return clierr.New(clierr.Internal, "Failed to search the catalogue", err)
		}
		if game != nil {
			games = append(games, *game)
		}
	} else {
		log.Info().Msgf("Searching for games with term=%s in its title", term)
		var err error
		games, err = repository.SearchByTitle(cmd.Context(), term)
		if err != nil {
			return clierr.New(clierr.Internal, "Failed to search the catalogue", err)
		}
	}

	if len(games) == 0 {
		cmd.Println("No game(s) found matching the search criteria.")
		return nil
	}
	renderGames(cmd, games)
	return nil
}

// exportCmd exports the game catalogue to a file in JSON or CSV format
func exportCmd() *cobra.Command {
	var exportFormat string

	cmd := &cobra.Command{
		Use:   "export [exportDir]",
		Short: "Export the game catalogue to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportCatalogue(cmd, args[0], exportFormat)
		},
	}

	cmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format: json or csv")
	return cmd
}

func exportCatalogue(cmd *cobra.Command, exportPath, exportFormat string) error {
	log.Info().Msg("Exporting the game catalogue...")

	if exportFormat != "json" && exportFormat != "csv" {
		return clierr.New(clierr.Validation, "Invalid export format. Supported formats: json, csv", nil)
	}
	if err := os.MkdirAll(exportPath, 0o755); err != nil {
		return clierr.New(clierr.Internal, "Failed to create export directory.", err)
	}

	games, err := gameRepository().List(cmd.Context())
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to read the catalogue", err)
	}
	summaries := make([]catalog.Summary, 0, len(games))
	for _, g := range games {
		s, err := g.Summary()
		if err != nil {
			log.Warn().Err(err).Str("game", g.ID).Msg("Skipping unreadable catalogue entry")
			continue
		}
		summaries = append(summaries, s)
	}

	timestamp := time.Now().Format("20060102_150405")
	filePath := filepath.Join(exportPath, fmt.Sprintf("glm_catalogue_%s.%s", timestamp, exportFormat))
	if exportFormat == "json" {
		err = writeSummariesJSON(filePath, summaries)
	} else {
		err = writeSummariesCSV(filePath, summaries)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to export the game catalogue.")
		return clierr.New(clierr.Internal, "Failed to export the game catalogue.", err)
	}

	cmd.Printf("Game catalogue exported to %s\n", filePath)
	return nil
}

func writeSummariesJSON(path string, summaries []catalog.Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

func writeSummariesCSV(path string, summaries []catalog.Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"ID", "Title", "Latest", "Installers", "Patches", "Size"}); err != nil {
		return err
	}
	for _, s := range summaries {
		row := []string{s.GameID, s.Title, s.Latest, strconv.Itoa(s.Installers), strconv.Itoa(s.Patches), strconv.FormatInt(s.Size, 10)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
