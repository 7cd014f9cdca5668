package types

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// AttendanceRecord is one reconciled row of the attendance ledger.  TicketNumber and
// TransferFlag are reserved for downstream systems and always written as 0; the
// pointer fields belong to the external schema and are always NULL here.
type AttendanceRecord struct {
	EmployeeCode string
	TicketNumber int
	EntryDate    string // YYYY-MM-DD
	Direction    Direction
	EntryTime    string // HH:MM:SS
	TransferFlag int

	UpdatedBy    *string
	Location     *string
	ErrorMessage *string
}

// AttendanceKey is the natural key of an AttendanceRecord.
type AttendanceKey struct {
	EmployeeCode string
	EntryDate    string
	Direction    Direction
	EntryTime    string
}

func (r AttendanceRecord) Key() AttendanceKey {
	return AttendanceKey{
		EmployeeCode: r.EmployeeCode,
		EntryDate:    r.EntryDate,
		Direction:    r.Direction,
		EntryTime:    r.EntryTime,
	}
}

// NewAttendanceRecord splits the event's components into date and time-of-day.
// It fails when the components do not form a valid time.
func NewAttendanceRecord(employeeCode string, ev RawLogEvent) (AttendanceRecord, error) {
	ts, err := ev.Timestamp()
	if err != nil {
		return AttendanceRecord{}, err
	}
	return AttendanceRecord{
		EmployeeCode: employeeCode,
		EntryDate:    ts.Format(DateLayout),
		Direction:    ev.Direction,
		EntryTime:    ts.Format(TimeLayout),
	}, nil
}
