package domain

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies the system a privileged account lives on. Each
// platform has a connector implementing verify/rotate/generate.
type Platform string

const (
	PlatformPostgres Platform = "postgres"
	PlatformMySQL    Platform = "mysql"
	PlatformMSSQL    Platform = "mssql"
	PlatformOracle   Platform = "oracle"
	PlatformLinux    Platform = "linux"
	PlatformWindows  Platform = "windows"
	PlatformAwsIam   Platform = "aws-iam"
	PlatformSSH      Platform = "ssh"
)

// RotationPolicy says when an account's credential is rotated.
type RotationPolicy string

const (
	RotationManual       RotationPolicy = "manual"
	RotationScheduled    RotationPolicy = "scheduled"
	RotationOnCheckin    RotationPolicy = "onCheckin"
	RotationOnExpiration RotationPolicy = "onExpiration"
)

// AccountStatus is the operational state of a privileged account.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountDisabled AccountStatus = "disabled"

	// AccountRotationFailed marks an account whose rotation failed and
	// could not be reverted. Terminal until an operator intervenes.
	AccountRotationFailed AccountStatus = "rotationFailed"
)

// PrivilegedAccount is one managed credential inside a safe. The password
// is stored only in encrypted form.
type PrivilegedAccount struct {
	ID                   uuid.UUID
	SafeID               uuid.UUID
	AccountName          string
	Username             string
	EncryptedPassword    string
	Platform             Platform
	Host                 string
	Port                 uint
	Database             string
	RotationPolicy       RotationPolicy
	RotationIntervalDays uint
	LastRotated          *time.Time
	NextRotation         *time.Time
	Status               AccountStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RotationDue reports whether the scheduled rotation time has passed.
func (a *PrivilegedAccount) RotationDue(now time.Time) bool {
	return a.RotationPolicy == RotationScheduled &&
		a.NextRotation != nil && a.NextRotation.Before(now) &&
		a.Status == AccountActive
}

// ScheduleNextRotation computes the follow-up rotation time from the
// account's interval; accounts without an interval stay unscheduled.
func (a *PrivilegedAccount) ScheduleNextRotation(from time.Time) {
	if a.RotationIntervalDays == 0 {
		a.NextRotation = nil
		return
	}
	next := from.Add(time.Duration(a.RotationIntervalDays) * 24 * time.Hour)
	a.NextRotation = &next
}
