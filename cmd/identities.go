package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mhornych/presence/internal/config"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Manage enrolled identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	RunE:  runIdentitiesList,
}

var identitiesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an enrolled identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitiesRemove,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesRemoveCmd)
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	st, err := mustOpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	identities, err := st.LoadAllIdentities(ctx)
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}

	if len(identities) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	for _, identity := range identities {
		fmt.Printf("%s  %-30s  enrolled %s\n",
			identity.ID,
			identity.DisplayName,
			identity.EnrolledAt.Format("2006-01-02 15:04"),
		)
	}
	fmt.Printf("\n%d identities\n", len(identities))
	return nil
}

func runIdentitiesRemove(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	st, err := mustOpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := st.RemoveIdentity(ctx, args[0]); err != nil {
		return fmt.Errorf("removing identity: %w", err)
	}

	fmt.Printf("Removed %s\n", args[0])
	return nil
}
