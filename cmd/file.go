package cmd

import (
	"runtime"

	"github.com/habedi/glm/pkg/clierr"
	"github.com/habedi/glm/pkg/operations"
	"github.com/habedi/glm/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// fileCmd groups file operations on a repository checkout.
func fileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "file",
		Short:       "Perform various file operations",
		Annotations: map[string]string{skipSetup: "true"},
	}

	cmd.AddCommand(hashCmd())

	return cmd
}

// hashCmd generates checksums for the installers and patches in a directory. Saved
// checksum files are picked up by the catalog and verified on install.
func hashCmd() *cobra.Command {
	var saveToFileFlag bool
	var cleanFlag bool
	var algo string
	var recursiveFlag bool
	var numThreads int

	cmd := &cobra.Command{
		Use:         "hash [fileDir]",
		Short:       "Generate hash values for game files in a directory",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateHashFiles(cmd, args[0], algo, recursiveFlag, saveToFileFlag, cleanFlag, numThreads)
		},
	}

	defaultThreads := runtime.NumCPU() - 2
	if defaultThreads < 2 {
		defaultThreads = 2
	}
	if defaultThreads > validation.MaxThreads {
		defaultThreads = validation.MaxThreads
	}

	cmd.Flags().StringVarP(&algo, "algo", "a", "sha256", "Hash algorithm to use [md5, sha1, sha256, sha512]")
	cmd.Flags().BoolVarP(&recursiveFlag, "recursive", "r", true, "Process files in subdirectories? [true, false]")
	cmd.Flags().BoolVarP(&saveToFileFlag, "save", "s", false, "Save hash to files? [true, false]")
	cmd.Flags().BoolVarP(&cleanFlag, "clean", "c", false, "Remove old hash files before generating new ones? [true, false]")
	cmd.Flags().IntVarP(&numThreads, "threads", "t", defaultThreads, "Number of files to hash in parallel [1-20]")

	return cmd
}

func generateHashFiles(cmd *cobra.Command, dir, algo string, recursive, saveToFile, clean bool, numThreads int) error {
	if err := validation.ValidateHashAlgo(algo); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if err := validation.ValidateThreadCount(numThreads); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	if clean {
		log.Info().Msgf("Cleaning old hash files from %s", dir)
		if err := operations.CleanHashes(dir, recursive); err != nil {
			return clierr.New(clierr.Internal, "Failed to remove old hash files", err)
		}
	}

	files, err := operations.FindFilesToHash(dir, recursive, operations.DefaultHashExclusions)
	if err != nil {
		return clierr.New(clierr.NotFound, "Failed to read "+dir, err)
	}

	var hashFiles []string
	failed := 0
	for res := range operations.GenerateHashes(cmd.Context(), files, algo, numThreads) {
		if res.Err != nil {
			failed++
			log.Error().Err(res.Err).Str("file", res.File).Msg("Failed to hash file")
			continue
		}
		if !saveToFile {
			cmd.Printf("%s hash for \"%s\": %s\n", algo, res.File, res.Hash)
			continue
		}
		path, err := operations.WriteSidecar(res.File, algo, res.Hash)
		if err != nil {
			failed++
			log.Error().Err(err).Str("file", res.File).Msg("Failed to save hash")
			continue
		}
		hashFiles = append(hashFiles, path)
	}

	if saveToFile {
		cmd.Println("Generated hash files:")
		for _, file := range hashFiles {
			cmd.Println(file)
		}
	}
	if failed > 0 {
		return clierr.New(clierr.Internal, "Some files could not be hashed. Please check the logs for details.", nil)
	}
	return nil
}
