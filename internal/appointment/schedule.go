package appointment

import (
	"time"

	"github.com/google/uuid"
)

type PeriodOccupancy struct {
	Period   string
	Occupied bool
}

type DaySchedule struct {
	Date    time.Time
	DayName string
	Periods []PeriodOccupancy
}

func (d DaySchedule) Occupied(period string) bool {
	for _, p := range d.Periods {
		if p.Period == period {
			return p.Occupied
		}
	}
	return false
}

type ScheduleGrid struct {
	DoctorID    uuid.UUID
	WorkingTime string
	Days        []DaySchedule
}

func (g ScheduleGrid) Day(date time.Time) (DaySchedule, bool) {
	for _, d := range g.Days {
		if d.Date.Equal(date) {
			return d, true
		}
	}
	return DaySchedule{}, false
}

// ProjectAvailability lays out windowDays days starting at windowStart, one
// cell per period, and marks the cells held by the doctor's accepted
// appointments. Appointments outside the window, for other doctors, or in any
// other status are ignored.
func ProjectAvailability(doctorID uuid.UUID, windowStart time.Time, windowDays int, appointments []Appointment) ScheduleGrid {
	periods := Periods()
	grid := ScheduleGrid{
		DoctorID:    doctorID,
		WorkingTime: WorkingTime(),
		Days:        make([]DaySchedule, 0, windowDays),
	}

	y, m, d := windowStart.Date()
	byDate := make(map[string]int, windowDays)
	for i := 0; i < windowDays; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, time.UTC)
		cells := make([]PeriodOccupancy, len(periods))
		for j, p := range periods {
			cells[j] = PeriodOccupancy{Period: p}
		}
		byDate[day.Format(DateLayout)] = i
		grid.Days = append(grid.Days, DaySchedule{
			Date:    day,
			DayName: day.Weekday().String(),
			Periods: cells,
		})
	}

	for _, a := range appointments {
		if a.Status != StatusAccepted || a.DoctorID != doctorID {
			continue
		}
		i, ok := byDate[a.Date.Format(DateLayout)]
		if !ok {
			continue
		}
		if j := periodIndex(a.Period); j < len(periods) {
			grid.Days[i].Periods[j].Occupied = true
		}
	}

	return grid
}
