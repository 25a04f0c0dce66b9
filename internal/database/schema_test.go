package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const migrationsDir = "../../migrations"

func TestMigrationFilesExist(t *testing.T) {
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		t.Fatal("Migrations directory does not exist")
	}

	expectedMigrations := []string{
		"00001_create_users_table.sql",
		"00002_create_refresh_tokens_table.sql",
		"00003_create_products_table.sql",
		"00004_create_orders_table.sql",
		"00005_create_order_items_table.sql",
		"00006_create_order_status_history_table.sql",
		"00007_create_updated_at_trigger.sql",
	}

	for _, migration := range expectedMigrations {
		path := filepath.Join(migrationsDir, migration)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Migration file %s does not exist", migration)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		content, err := os.ReadFile(filepath.Join(migrationsDir, file.Name()))
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", file.Name(), err)
			continue
		}

		contentStr := string(content)
		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			if !strings.Contains(contentStr, directive) {
				t.Errorf("Migration file %s missing %q directive", file.Name(), directive)
			}
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	expectedTables := map[string]string{
		"users":                "00001_create_users_table.sql",
		"refresh_tokens":       "00002_create_refresh_tokens_table.sql",
		"products":             "00003_create_products_table.sql",
		"orders":               "00004_create_orders_table.sql",
		"order_items":          "00005_create_order_items_table.sql",
		"order_status_history": "00006_create_order_status_history_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		content, err := os.ReadFile(filepath.Join(migrationsDir, migrationFile))
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", migrationFile, err)
			continue
		}

		contentStr := string(content)
		if !strings.Contains(contentStr, "CREATE TABLE "+tableName) {
			t.Errorf("Migration file %s does not create table %s", migrationFile, tableName)
		}
		if !strings.Contains(contentStr, "DROP TABLE "+tableName) {
			t.Errorf("Migration file %s does not drop table %s in down section", migrationFile, tableName)
		}
	}
}

func TestOrdersTableEnforcesUniqueOrderNumber(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(migrationsDir, "00004_create_orders_table.sql"))
	if err != nil {
		t.Fatalf("Failed to read orders migration: %v", err)
	}

	if !strings.Contains(string(content), "order_number VARCHAR(32) NOT NULL UNIQUE") {
		t.Error("Orders table missing unique constraint on order_number")
	}
}

func TestProductsTableForbidsNegativeStock(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(migrationsDir, "00003_create_products_table.sql"))
	if err != nil {
		t.Fatalf("Failed to read products migration: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "CHECK (stock >= 0)") {
		t.Error("Products table missing non-negative stock check")
	}
	if !strings.Contains(contentStr, "price DECIMAL(10,2)") {
		t.Error("Products table missing two-decimal price column")
	}
	if !strings.Contains(contentStr, "name JSONB") {
		t.Error("Products table should store localized names as JSONB")
	}
}

func TestOrderItemsTableRequiresPositiveQuantity(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(migrationsDir, "00005_create_order_items_table.sql"))
	if err != nil {
		t.Fatalf("Failed to read order_items migration: %v", err)
	}

	if !strings.Contains(string(content), "CHECK (quantity > 0)") {
		t.Error("Order items table missing positive quantity check")
	}
}
