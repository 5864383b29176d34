package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mhornych/presence/internal/config"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/provider"
	"github.com/mhornych/presence/internal/store"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Bulk-enroll identities from a directory of face photos",
	Long: `Enroll every face photo in a directory. The file name (without
extension, dashes become spaces) is used as the display name:
"jana-dvorakova.jpg" enrolls "jana dvorakova".`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("dry-run", false, "List what would be enrolled without writing")
}

// imageExtensions are the file types the importer picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// collectImages returns image paths in the directory, non-recursive.
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// displayNameFromPath derives a display name from the file name.
func displayNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.ReplaceAll(base, "-", " "))
}

// importOne extracts the face embedding from one photo and stores it.
func importOne(ctx context.Context, st store.Store, p provider.Provider, path string) error {
	imageData, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	embeddings, err := p.Extract(ctx, imageData)
	if err != nil {
		return fmt.Errorf("extracting embedding: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("no face detected")
	}
	if len(embeddings) > 1 {
		return fmt.Errorf("expected exactly one face, found %d", len(embeddings))
	}

	return st.AppendIdentity(ctx, gallery.Identity{
		ID:          uuid.NewString(),
		DisplayName: displayNameFromPath(path),
		Embedding:   embeddings[0],
		EnrolledAt:  time.Now(),
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	dryRun := mustGetBool(cmd, "dry-run")

	paths, err := collectImages(args[0])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No images found")
		return nil
	}

	if dryRun {
		for _, path := range paths {
			fmt.Printf("%s -> %q\n", filepath.Base(path), displayNameFromPath(path))
		}
		fmt.Printf("\n%d identities would be enrolled\n", len(paths))
		return nil
	}

	st, err := mustOpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p := buildProvider(cfg)
	ctx := context.Background()

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, failed int
	var failures []string
	for _, path := range paths {
		if err := importOne(ctx, st, p, path); err != nil {
			failed++
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
		} else {
			enrolled++
		}
		bar.Add(1)
	}
	fmt.Println()

	for _, f := range failures {
		fmt.Printf("Failed: %s\n", f)
	}
	fmt.Printf("Enrolled %d identities, %d failed\n", enrolled, failed)
	return nil
}
