package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

type SeedDevOptions struct {
	// Employees maps enrollment numbers to employee codes for the legacy directory.
	Employees map[int]string
}

// SeedDev prepares a legacy store for local runs against simulated devices: the
// DeleteAll settings row and any fixture employees.  Existing mappings are overwritten.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	if _, err := db.ExecContext(ctx, `
INSERT INTO settings(setting_name, setting_value)
VALUES ('DeleteAll', '0')
ON CONFLICT DO NOTHING;`); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	enrollments := make([]int, 0, len(opt.Employees))
	for n := range opt.Employees {
		enrollments = append(enrollments, n)
	}
	sort.Ints(enrollments)

	for _, n := range enrollments {
		code := strings.TrimSpace(opt.Employees[n])
		if code == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO employees(enrollment_number, employee_code)
VALUES (?, ?)
ON CONFLICT (enrollment_number) DO UPDATE SET
  employee_code = excluded.employee_code;
`, n, code); err != nil {
			return fmt.Errorf("seed employee %d: %w", n, err)
		}
	}

	return nil
}
