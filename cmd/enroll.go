package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mhornych/presence/internal/config"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/store"
	"github.com/mhornych/presence/internal/store/postgres"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>",
	Short: "Enroll an identity from a face photo",
	Long: `Extract a face embedding from a photo and store it as an enrolled
identity. The photo must contain exactly one face.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Display name for the identity (required)")
	enrollCmd.Flags().String("id", "", "Identity ID (defaults to a generated UUID)")
	if err := enrollCmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
}

// mustOpenStore opens the PostgreSQL store for CLI commands that work
// directly against the database.
func mustOpenStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	st, err := postgres.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return st, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	imagePath := args[0]
	name := mustGetString(cmd, "name")
	id := mustGetString(cmd, "id")
	if id == "" {
		id = uuid.NewString()
	}

	st, err := mustOpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	embeddings, err := buildProvider(cfg).Extract(ctx, imageData)
	if err != nil {
		return fmt.Errorf("extracting embedding: %w", err)
	}
	if len(embeddings) == 0 {
		return errors.New("no face detected in the image")
	}
	if len(embeddings) > 1 {
		return fmt.Errorf("expected exactly one face, found %d", len(embeddings))
	}

	identity := gallery.Identity{
		ID:          id,
		DisplayName: name,
		Embedding:   embeddings[0],
		EnrolledAt:  time.Now(),
	}
	if err := st.AppendIdentity(ctx, identity); err != nil {
		return fmt.Errorf("storing identity: %w", err)
	}

	fmt.Printf("Enrolled %s (%s), embedding dim %d\n", name, id, len(identity.Embedding))
	return nil
}
