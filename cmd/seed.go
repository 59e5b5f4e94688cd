package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentify-hq/sentify-engine/pkg/seed"
)

var flagSeedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sectors, companies and feed topics",
	Long: `Load the reference sectors, companies and feed topics. Safe to run
repeatedly. Without --file the built-in reference set is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := loadReference(flagSeedFile)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		result, err := seed.NewSeeder(a.db, a.references, a.topics, a.logger).Apply(cmd.Context(), ref)
		if err != nil {
			return err
		}
		fmt.Printf("sectors: %d, companies: %d, topics: %d\n", result.Sectors, result.Companies, result.Topics)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&flagSeedFile, "file", "", "reference YAML file (default built-in)")
}

func loadReference(path string) (*seed.Reference, error) {
	if path == "" {
		return seed.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return seed.Parse(data)
}
