package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/civic-portal-api/internal/repository"
	"github.com/noah-isme/civic-portal-api/internal/service"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a verified administrator account",
	Long: `Administrators cannot register through the API. create-admin inserts one
directly. The password is read from --password or PORTAL_ADMIN_PASSWORD.`,
	RunE: runCreateAdmin,
}

var adminFlags struct {
	email    string
	name     string
	password string
}

func init() {
	createAdminCmd.Flags().StringVar(&adminFlags.email, "email", "", "administrator email (required)")
	createAdminCmd.Flags().StringVar(&adminFlags.name, "name", "Portal Administrator", "display name")
	createAdminCmd.Flags().StringVar(&adminFlags.password, "password", "", "initial password, at least 8 characters")
	_ = createAdminCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(createAdminCmd)
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	password := adminFlags.password
	if password == "" {
		password = os.Getenv("PORTAL_ADMIN_PASSWORD")
	}
	if password == "" {
		return errors.New("password required: pass --password or set PORTAL_ADMIN_PASSWORD")
	}

	e, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	users := service.NewUserService(repository.NewUserRepository(e.db), validator.New(), e.logger, nil)
	admin, err := users.CreateAdmin(cmd.Context(), service.CreateAdminRequest{
		Email:    adminFlags.email,
		FullName: adminFlags.name,
		Password: password,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", admin.Email, admin.ID)
	return nil
}
