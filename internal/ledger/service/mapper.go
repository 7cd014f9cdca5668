package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
)

// EmployeeMapper turns enrollment numbers into employee codes.
type EmployeeMapper struct{}

func NewEmployeeMapper() *EmployeeMapper { return &EmployeeMapper{} }

// Resolve returns the mapped code, or the decimal enrollment number when there is
// no usable mapping.  It never fails.
func (m *EmployeeMapper) Resolve(ctx context.Context, enrollment int, dir store.EmployeeDirectory) string {
	fallback := strconv.Itoa(enrollment)

	code, found, err := dir.LookupEmployeeCode(ctx, enrollment)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int("enrollment", enrollment).
			Msg("employee lookup failed, using enrollment number")
		return fallback
	}
	code = strings.TrimSpace(code)
	if !found || code == "" {
		return fallback
	}
	return code
}
