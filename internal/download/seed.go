package download

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chungachanga/crhoy-pipeline/internal/models"
)

// seedFile is the on-disk shape of configs/smart_categories.seed.yaml.
type seedFile struct {
	Categories []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Ignore      bool   `yaml:"ignore"`
	} `yaml:"categories"`
}

// SeedSmartCategories loads the predefined SmartCategory set from a YAML
// fixture and seeds the table if it is still empty. Safe to call on
// every startup: Seed itself is a no-op once any row exists.
func SeedSmartCategories(ctx context.Context, pool dbPool, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("download: read seed file %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("download: parse seed file %s: %w", path, err)
	}

	seeds := make([]models.SmartCategory, 0, len(file.Categories))
	for _, c := range file.Categories {
		seeds = append(seeds, models.SmartCategory{
			Name:        c.Name,
			Description: c.Description,
			Ignore:      c.Ignore,
		})
	}

	store := models.NewSmartCategoryStore()
	if err := store.Seed(ctx, pool, seeds); err != nil {
		return fmt.Errorf("download: seed smart categories: %w", err)
	}
	return nil
}
