package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Periodicity is the recurrence unit of a delivery schedule
type Periodicity string

const (
	PeriodicityDaily   Periodicity = "Daily"
	PeriodicityWeekly  Periodicity = "Weekly"
	PeriodicityMonthly Periodicity = "Monthly"
)

var ErrInvalidSchedule = errors.New("invalid delivery schedule")

// cronParser accepts the 6-field (with seconds) expressions this
// service generates and schedules with
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is the structured view of a recurring delivery schedule.
// The generated cron string is authoritative; the structured fields
// are a convenience view for display and editing.
type Schedule struct {
	Periodicity Periodicity `json:"periodicity" mapstructure:"periodicity"`
	Every       int         `json:"every" mapstructure:"every"`
	Hour        int         `json:"hour" mapstructure:"hour"`
	Minute      int         `json:"minute" mapstructure:"minute"`
	Period      string      `json:"period" mapstructure:"period"` // AM or PM
	StartDate   *time.Time  `json:"start_date,omitempty" mapstructure:"start_date"`
	EndDate     *time.Time  `json:"end_date,omitempty" mapstructure:"end_date"`
	// CronExpression is filled from the structured fields on write
	CronExpression string `json:"cron_expression,omitempty" mapstructure:"cron_expression"`
}

// Validate checks the structured fields before cron generation
func (s *Schedule) Validate() error {
	switch s.Periodicity {
	case PeriodicityDaily, PeriodicityWeekly, PeriodicityMonthly:
	default:
		return errors.Wrapf(ErrInvalidSchedule, "unknown periodicity %q", s.Periodicity)
	}

	if s.Every < 1 {
		return errors.Wrap(ErrInvalidSchedule, "every must be at least 1")
	}
	if s.Hour < 1 || s.Hour > 12 {
		return errors.Wrap(ErrInvalidSchedule, "hour must be between 1 and 12")
	}
	if s.Minute < 0 || s.Minute > 59 {
		return errors.Wrap(ErrInvalidSchedule, "minute must be between 0 and 59")
	}
	if p := strings.ToUpper(s.Period); p != "AM" && p != "PM" {
		return errors.Wrap(ErrInvalidSchedule, "period must be AM or PM")
	}
	if s.StartDate != nil && s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return errors.Wrap(ErrInvalidSchedule, "end date before start date")
	}

	return nil
}

// hour24 converts the 12-hour clock fields to a 0-23 hour
func (s *Schedule) hour24() int {
	h := s.Hour % 12
	if strings.ToUpper(s.Period) == "PM" {
		h += 12
	}
	return h
}

// Cron translates the structured schedule into a 6-field cron
// expression (seconds first). The translation is deterministic:
//
//	Daily   -> 0 M H */N * *
//	Weekly  -> 0 M H * * d   (d = weekday of the start date; cron
//	                          cannot express week strides, so every-N
//	                          collapses to weekly)
//	Monthly -> 0 M H D */N * (D = day-of-month of the start date)
func (s *Schedule) Cron() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	hour := s.hour24()

	switch s.Periodicity {
	case PeriodicityDaily:
		return fmt.Sprintf("0 %d %d */%d * *", s.Minute, hour, s.Every), nil
	case PeriodicityWeekly:
		weekday := 0
		if s.StartDate != nil {
			weekday = int(s.StartDate.Weekday())
		}
		return fmt.Sprintf("0 %d %d * * %d", s.Minute, hour, weekday), nil
	case PeriodicityMonthly:
		day := 1
		if s.StartDate != nil {
			day = s.StartDate.Day()
		}
		return fmt.Sprintf("0 %d %d %d */%d *", s.Minute, hour, day, s.Every), nil
	}

	return "", errors.Wrapf(ErrInvalidSchedule, "unknown periodicity %q", s.Periodicity)
}

// ScheduleFromCron is the best-effort inverse of Cron, for display
// only. The cron string stays authoritative; never round-trip this
// for correctness.
func ScheduleFromCron(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return nil, errors.Wrapf(ErrInvalidSchedule, "expected 6 cron fields, got %d", len(fields))
	}

	minute, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSchedule, "minute field is not numeric")
	}
	hour24, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSchedule, "hour field is not numeric")
	}

	s := &Schedule{
		Minute:         minute,
		Period:         "AM",
		Every:          1,
		CronExpression: expr,
	}

	s.Hour = hour24 % 12
	if s.Hour == 0 {
		s.Hour = 12
	}
	if hour24 >= 12 {
		s.Period = "PM"
	}

	switch {
	case strings.HasPrefix(fields[3], "*/"):
		s.Periodicity = PeriodicityDaily
		if every, err := strconv.Atoi(fields[3][2:]); err == nil {
			s.Every = every
		}
	case fields[3] != "*" && strings.HasPrefix(fields[4], "*/"):
		s.Periodicity = PeriodicityMonthly
		if every, err := strconv.Atoi(fields[4][2:]); err == nil {
			s.Every = every
		}
	case fields[5] != "*":
		s.Periodicity = PeriodicityWeekly
	default:
		s.Periodicity = PeriodicityDaily
	}

	return s, nil
}

// NextRun computes the next fire time of a cron expression after the
// given instant
func NextRun(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidSchedule, "parsing cron %q: %v", cronExpr, err)
	}
	return sched.Next(after), nil
}

// WindowContains reports whether now falls inside the schedule's
// [start, end] bounds. Nil bounds are open.
func (s *Schedule) WindowContains(now time.Time) bool {
	if s.StartDate != nil && now.Before(*s.StartDate) {
		return false
	}
	if s.EndDate != nil && now.After(*s.EndDate) {
		return false
	}
	return true
}

// SchedulesEqual reports whether two schedules describe the same
// cadence and window. Either side may be nil. CronExpression is
// derived from the structured fields and ignored here.
func SchedulesEqual(a, b *Schedule) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Periodicity == b.Periodicity &&
		a.Every == b.Every &&
		a.Hour == b.Hour &&
		a.Minute == b.Minute &&
		a.Period == b.Period &&
		timePtrEqual(a.StartDate, b.StartDate) &&
		timePtrEqual(a.EndDate, b.EndDate)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// EffectiveCron resolves which cron expression governs a destination
// reference: the destination-level override wins over the
// audience-level schedule. Empty when neither is set.
func EffectiveCron(audience *AudienceRef, dest *DestinationRef) string {
	if dest != nil && dest.CronSchedule != "" {
		return dest.CronSchedule
	}
	if audience != nil && audience.Schedule != nil && audience.Schedule.CronExpression != "" {
		return audience.Schedule.CronExpression
	}
	return ""
}
