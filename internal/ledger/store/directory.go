package store

import "context"

// EmployeeDirectory maps enrollment numbers to employee codes.  found is false when
// no row exists; a row with an empty code is returned as found with code "".
type EmployeeDirectory interface {
	LookupEmployeeCode(ctx context.Context, enrollment int) (code string, found bool, err error)
}

// SettingDeleteAll is the settings row that requests a full-history collection.
const SettingDeleteAll = "DeleteAll"

type SettingsStore interface {
	GetSetting(ctx context.Context, name string) (value string, found bool, err error)
	// PutSetting updates the row, inserting it when absent.
	PutSetting(ctx context.Context, name, value string) error
}
